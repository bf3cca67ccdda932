package page

import (
	"bytes"
	"strconv"

	"github.com/freekieb7/loam/http"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const contentType = "text/html; charset=utf-8"

// Page is one renderable document. Render fills the body container.
type Page interface {
	Title() string
	Status() int
	Render(req *http.Request, container *html.Node)
}

// Handler answers every request with p.
func Handler(p Page) http.Handler {
	return func(req *http.Request) (*http.Response, error) {
		return Respond(p, req)
	}
}

// Respond renders p inside the shared document skeleton.
func Respond(p Page, req *http.Request) (*http.Response, error) {
	container := element(atom.Div, attr("class", "container"))
	p.Render(req, container)

	document := &html.Node{Type: html.DocumentNode}
	document.AppendChild(&html.Node{Type: html.DoctypeNode, Data: "html"})
	document.AppendChild(
		element(atom.Html, attr("lang", "en"),
			element(atom.Head,
				element(atom.Meta, attr("charset", "utf-8")),
				element(atom.Meta, attr("name", "viewport"), attr("content", "width=device-width, initial-scale=1")),
				element(atom.Title, text(p.Title())),
			),
			element(atom.Body, container),
		),
	)

	var buf bytes.Buffer
	if err := html.Render(&buf, document); err != nil {
		return nil, err
	}

	return http.NewContentResponse(p.Status(), http.BytesBody(buf.Bytes()), contentType), nil
}

// ErrorPage renders error statuses for the router.
func ErrorPage(req *http.Request, status int) *http.Response {
	res, err := Respond(Error(status), req)
	if err != nil {
		return http.PlainErrorPage(req, status)
	}
	return res
}

type errorPage struct {
	status int
}

func Error(status int) Page {
	return errorPage{status: status}
}

func (p errorPage) Title() string {
	return http.StatusText(p.status)
}

func (p errorPage) Status() int {
	return p.status
}

func (p errorPage) Render(req *http.Request, container *html.Node) {
	container.AppendChild(element(atom.H2, text(strconv.Itoa(p.status)+" "+http.StatusText(p.status))))
	container.AppendChild(element(atom.P,
		element(atom.A, attr("href", "/"), attr("onclick", "history.back(); return false;"), text("Go back")),
	))
}

// node helpers

// element builds a tag whose children are the given nodes. Attributes are
// passed as html.Attribute values mixed in with the children.
func element(tag atom.Atom, parts ...any) *html.Node {
	node := &html.Node{Type: html.ElementNode, DataAtom: tag, Data: tag.String()}

	for _, part := range parts {
		switch part := part.(type) {
		case html.Attribute:
			node.Attr = append(node.Attr, part)
		case *html.Node:
			node.AppendChild(part)
		}
	}

	return node
}

func attr(key, value string) html.Attribute {
	return html.Attribute{Key: key, Val: value}
}

func text(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

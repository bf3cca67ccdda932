package http

import (
	"bytes"
	"sort"
	"strconv"
)

// Body produces the response payload. It is asked at most once, at write
// time, and never for HEAD requests.
type Body interface {
	Produce() ([]byte, error)
}

type BytesBody []byte

func (b BytesBody) Produce() ([]byte, error) {
	return b, nil
}

func StringBody(s string) Body {
	return BytesBody(s)
}

// DeferredBody defers work such as file reads until the response is written.
type DeferredBody func() ([]byte, error)

func (f DeferredBody) Produce() ([]byte, error) {
	return f()
}

type Response struct {
	Status  int
	Headers map[string]string

	body     Body
	produced bool
}

func NewResponse(status int, body Body) *Response {
	if body == nil {
		body = BytesBody(nil)
	}

	return &Response{
		Status:  status,
		Headers: make(map[string]string),
		body:    body,
	}
}

// NewContentResponse is NewResponse plus a Content-Type; such responses also
// announce that the connection will be closed.
func NewContentResponse(status int, body Body, contentType string) *Response {
	res := NewResponse(status, body)
	res.Headers[headerContentType] = contentType
	res.Headers[headerConnection] = connectionClose
	return res
}

func Text(status int, text string) *Response {
	return NewContentResponse(status, StringBody(text), "text/plain")
}

func Redirect(status int, location string) *Response {
	res := NewResponse(status, StringBody("Moved to "+location))
	res.Headers[headerLocation] = location
	return res
}

func (res *Response) SetHeader(name, value string) *Response {
	res.Headers[name] = value
	return res
}

func (res *Response) SetCookie(cookie Cookie) *Response {
	res.Headers[headerSetCookie] = cookie.String()
	return res
}

func (res *Response) ContentType() string {
	return res.Headers[headerContentType]
}

// Produce asks the body producer for the payload. A second call returns nil.
func (res *Response) Produce() ([]byte, error) {
	if res.produced {
		return nil, nil
	}
	res.produced = true

	return res.body.Produce()
}

// Header renders the status line and header block, blank line included.
func (res *Response) Header() []byte {
	var buf bytes.Buffer
	res.writeHeader(&buf)
	return buf.Bytes()
}

func (res *Response) writeHeader(buf *bytes.Buffer) {
	buf.WriteString(protocolHttp11)
	buf.WriteByte(' ')
	buf.WriteString(strconv.Itoa(res.Status))
	buf.WriteByte(' ')
	buf.WriteString(StatusText(res.Status))
	buf.Write(crlf)

	names := make([]string, 0, len(res.Headers))
	for name := range res.Headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(res.Headers[name])
		buf.Write(crlf)
	}
	buf.Write(crlf)
}

// Serialize renders the complete wire form. For HEAD only the header block
// is rendered and the body is never produced; otherwise the body follows,
// then a trailing CRLF. Connection: close and Content-Length are filled in
// when missing.
func (res *Response) Serialize(method string) ([]byte, error) {
	if _, found := res.Headers[headerConnection]; !found {
		res.Headers[headerConnection] = connectionClose
	}

	if method == MethodHead {
		return res.Header(), nil
	}

	body, err := res.Produce()
	if err != nil {
		return nil, err
	}

	if _, found := res.Headers[headerContentLength]; !found {
		res.Headers[headerContentLength] = strconv.Itoa(len(body))
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 256)
	res.writeHeader(&buf)
	buf.Write(body)
	buf.Write(crlf)

	return buf.Bytes(), nil
}

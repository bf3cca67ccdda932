package page

import (
	"github.com/freekieb7/loam/http"
	"github.com/freekieb7/loam/session"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SessionLookup resolves the session a request belongs to.
type SessionLookup func(req *http.Request) session.Handle

type indexPage struct {
	sessions SessionLookup
}

// Index greets the logged in user and links to the other pages.
func Index(sessions SessionLookup) Page {
	return indexPage{sessions: sessions}
}

func (p indexPage) Title() string { return "loam" }

func (p indexPage) Status() int { return http.StatusOK }

func (p indexPage) Render(req *http.Request, container *html.Node) {
	container.AppendChild(element(atom.H1, text("loam")))

	username, found := p.sessions(req).Read("username")
	if !found {
		container.AppendChild(element(atom.P,
			text("You are not logged in. "),
			element(atom.A, attr("href", "/login"), text("Log in")),
		))
		return
	}

	container.AppendChild(element(atom.P, text("Logged in as "+username)))
	container.AppendChild(element(atom.Nav,
		element(atom.Ul,
			element(atom.Li, element(atom.A, attr("href", "/upload"), text("Upload files"))),
		),
	))
	container.AppendChild(element(atom.Form, attr("method", "post"), attr("action", "/api/logout"),
		element(atom.Button, attr("type", "submit"), text("Log out")),
	))
}

type loginPage struct{}

func Login() Page {
	return loginPage{}
}

func (loginPage) Title() string { return "Log in" }

func (loginPage) Status() int { return http.StatusOK }

func (loginPage) Render(req *http.Request, container *html.Node) {
	container.AppendChild(element(atom.H2, text("Log in")))
	container.AppendChild(element(atom.Form, attr("method", "post"), attr("action", "/api/login"),
		element(atom.Label, attr("for", "username"), text("Username")),
		element(atom.Input, attr("id", "username"), attr("name", "username"), attr("type", "text"), attr("required", "")),
		element(atom.Label, attr("for", "password"), text("Password")),
		element(atom.Input, attr("id", "password"), attr("name", "password"), attr("type", "password"), attr("required", "")),
		element(atom.Button, attr("type", "submit"), text("Log in")),
	))
}

type uploadPage struct{}

// Upload lets a browser announce files and stream them in chunks.
func Upload() Page {
	return uploadPage{}
}

func (uploadPage) Title() string { return "Upload" }

func (uploadPage) Status() int { return http.StatusOK }

func (uploadPage) Render(req *http.Request, container *html.Node) {
	container.AppendChild(element(atom.H2, text("Upload files")))
	container.AppendChild(element(atom.Input, attr("id", "files"), attr("type", "file"), attr("multiple", "")))
	container.AppendChild(element(atom.Button, attr("id", "send"), attr("type", "button"), text("Upload")))
	container.AppendChild(element(atom.Pre, attr("id", "log")))
	container.AppendChild(element(atom.Script, text(uploadScript)))
}

// uploadScript announces the selected files with one manifest, then sends
// each accepted file in chunks to /uploadFile.
const uploadScript = `
const chunkSize = 1 << 20;
const log = (line) => { document.getElementById("log").textContent += line + "\n"; };

document.getElementById("send").addEventListener("click", async () => {
	const files = Array.from(document.getElementById("files").files);
	const manifest = files.map((f) => f.size + " " + f.name).join("\n") + "\n\n";

	const reply = await fetch("/upload", { method: "POST", body: manifest });
	if (!reply.ok) { log("announce failed: " + reply.status); return; }

	const lines = (await reply.text()).split("\n").filter((l) => l !== "");
	for (let i = 0; i < lines.length; i++) {
		const [id, size, path, existed] = lines[i].split(";");
		if (existed === "true") { log(path + " already exists"); continue; }

		for (let offset = 0; offset < files[i].size; offset += chunkSize) {
			const chunk = files[i].slice(offset, offset + chunkSize);
			const sent = await fetch("/uploadFile?id=" + id, { method: "POST", body: chunk });
			if (!sent.ok) { log(path + " failed: " + sent.status); break; }
		}
		log(path + " done (" + size + " bytes)");
	}
});
`

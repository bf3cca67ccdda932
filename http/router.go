package http

import (
	"fmt"
	"log/slog"
)

type Route struct {
	Method  string
	Path    string
	Handler Handler
}

// Router maps a method to a tree of path segments. It is built before
// serving starts and only read afterwards, so workers share it freely.
type Router struct {
	Routes []Route

	// Fallback answers unmatched paths of methods without their own
	// fallback. Nil means the 404 error page.
	Fallback Handler
	// ErrorPage renders every synthesized error. Nil means PlainErrorPage.
	ErrorPage ErrorPage

	methods   map[string]*node
	fallbacks map[string]Handler
}

func NewRouter() *Router {
	return &Router{
		Routes:    make([]Route, 0),
		methods:   make(map[string]*node),
		fallbacks: make(map[string]Handler),
	}
}

func (router *Router) GET(path string, handler Handler, middleware ...Middleware) {
	router.Handle(MethodGet, path, handler, middleware...)
}

func (router *Router) HEAD(path string, handler Handler, middleware ...Middleware) {
	router.Handle(MethodHead, path, handler, middleware...)
}

func (router *Router) POST(path string, handler Handler, middleware ...Middleware) {
	router.Handle(MethodPost, path, handler, middleware...)
}

func (router *Router) PUT(path string, handler Handler, middleware ...Middleware) {
	router.Handle(MethodPut, path, handler, middleware...)
}

func (router *Router) DELETE(path string, handler Handler, middleware ...Middleware) {
	router.Handle(MethodDelete, path, handler, middleware...)
}

func (router *Router) Handle(method, path string, handler Handler, middleware ...Middleware) {
	for _, middleware := range middleware {
		handler = middleware(handler)
	}

	root, found := router.methods[method]
	if !found {
		root = newNode()
		router.methods[method] = root
	}
	root.insert(splitPath(path), handler)

	router.Routes = append(router.Routes, Route{
		Method:  method,
		Path:    path,
		Handler: handler,
	})
}

// Group registers the routes declared in groupFunc below path, wrapped in
// the given middleware.
func (router *Router) Group(path string, groupFunc func(group *Router), middleware ...Middleware) {
	group := NewRouter()

	groupFunc(group)

	for _, route := range group.Routes {
		router.Handle(route.Method, path+route.Path, route.Handler, middleware...)
	}
}

// SetMethodFallback overrides the fallback for unmatched paths of one method.
func (router *Router) SetMethodFallback(method string, handler Handler) {
	router.fallbacks[method] = handler
}

// Resolve finds the handler for a request path. The boolean is false only
// when no route exists for the method at all.
func (router *Router) Resolve(method string, parts []string) (Handler, bool) {
	root, found := router.methods[method]
	if !found {
		return nil, false
	}

	if handler := root.find(parts); handler != nil {
		return handler, true
	}

	if fallback, found := router.fallbacks[method]; found {
		return fallback, true
	}
	if router.Fallback != nil {
		return router.Fallback, true
	}

	return router.StatusHandler(StatusNotFound), true
}

// Respond resolves and invokes the handler for req. It is the single recovery
// boundary of a request: errors and panics become error pages.
func (router *Router) Respond(req *Request) *Response {
	handler, found := router.Resolve(req.Method, req.Resource.PathParts())
	if !found {
		return router.errorPage(req, StatusNotImplemented)
	}

	return router.invoke(req, handler)
}

func (router *Router) invoke(req *Request, handler Handler) (res *Response) {
	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("handler panicked", "request_id", req.ID, "method", req.Method, "path", req.Resource.Path, "panic", recovered)
			res = router.errorPage(req, StatusInternalServerError)
		}
	}()

	res, err := handler(req)
	if err != nil {
		status := StatusOf(err)
		if status >= StatusInternalServerError {
			slog.Error("handler failed", "request_id", req.ID, "method", req.Method, "path", req.Resource.Path, "error", err)
		} else {
			slog.Debug("handler rejected request", "request_id", req.ID, "status", status, "error", err)
		}
		return router.errorPage(req, status)
	}

	if res == nil {
		slog.Error("handler returned no response", "request_id", req.ID, "method", req.Method, "path", req.Resource.Path)
		return router.errorPage(req, StatusInternalServerError)
	}

	return res
}

func (router *Router) errorPage(req *Request, status int) (res *Response) {
	if router.ErrorPage == nil {
		return PlainErrorPage(req, status)
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			slog.Error("error page panicked", "status", status, "panic", recovered)
			res = PlainErrorPage(req, status)
		}
	}()

	return router.ErrorPage(req, status)
}

// StatusHandler answers every request with the error page for status.
func (router *Router) StatusHandler(status int) Handler {
	return func(req *Request) (*Response, error) {
		return router.errorPage(req, status), nil
	}
}

// Alias answers with whatever GET path answers, looked up per request.
func (router *Router) Alias(path string) Handler {
	parts := splitPath(path)

	return func(req *Request) (*Response, error) {
		root, found := router.methods[MethodGet]
		if !found {
			return nil, Errorf(StatusNotFound, "alias target %s has no GET routes", path)
		}

		handler := root.find(parts)
		if handler == nil {
			return nil, Errorf(StatusNotFound, "alias target %s is not registered", path)
		}

		return handler(req)
	}
}

// RedirectTo answers with a permanent redirect.
func RedirectTo(location string) Handler {
	return func(req *Request) (*Response, error) {
		return Redirect(StatusMovedPermanently, location), nil
	}
}

func (route Route) String() string {
	return fmt.Sprintf("%s %s", route.Method, route.Path)
}

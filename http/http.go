package http

const (
	DefaultReceiveSize = 4096 // bytes requested per Receive call
)

const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodPatch   = "PATCH"
	MethodDelete  = "DELETE"
	MethodOptions = "OPTIONS"
)

var (
	protocolPrefix      = []byte("HTTP")
	protocolHttp11      = "HTTP/1.1"
	headerTerminator    = []byte("\r\n\r\n")
	crlf                = []byte("\r\n")
	headerContentLength = "Content-Length"
	headerContentType   = "Content-Type"
	headerConnection    = "Connection"
	headerLocation      = "Location"
	headerSetCookie     = "Set-Cookie"
	headerCookie        = "Cookie"
	connectionClose     = "close"
)

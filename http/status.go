package http

const (
	StatusContinue           = 100 // RFC 7231, 6.2.1
	StatusSwitchingProtocols = 101 // RFC 7231, 6.2.2

	StatusOK      = 200 // RFC 7231, 6.3.1
	StatusCreated = 201 // RFC 7231, 6.3.2

	StatusMovedPermanently = 301 // RFC 7231, 6.4.2
	StatusFound            = 302 // RFC 7231, 6.4.3
	StatusNotModified      = 304 // RFC 7232, 4.1

	StatusBadRequest   = 400 // RFC 7231, 6.5.1
	StatusUnauthorized = 401 // RFC 7235, 3.1
	StatusForbidden    = 403 // RFC 7231, 6.5.3
	StatusNotFound     = 404 // RFC 7231, 6.5.4

	StatusInternalServerError = 500 // RFC 7231, 6.6.1
	StatusNotImplemented      = 501 // RFC 7231, 6.6.2
	StatusBadGateway          = 502 // RFC 7231, 6.6.3
	StatusServiceUnavailable  = 503 // RFC 7231, 6.6.4
)

const unknownStatusText = "<???>"

var statusMessages = map[int]string{
	StatusContinue:           "Continue",
	StatusSwitchingProtocols: "Switching Protocols",

	StatusOK:      "OK",
	StatusCreated: "Created",

	StatusMovedPermanently: "Moved Permanently",
	StatusFound:            "Found",
	StatusNotModified:      "Not Modified",

	StatusBadRequest:   "Bad Request",
	StatusUnauthorized: "Unauthorized",
	StatusForbidden:    "Forbidden",
	StatusNotFound:     "Not Found",

	StatusInternalServerError: "Internal Server Error",
	StatusNotImplemented:      "Not Implemented",
	StatusBadGateway:          "Bad Gateway",
	StatusServiceUnavailable:  "Service Unavailable",
}

// StatusText returns the reason phrase written on the status line.
func StatusText(code int) string {
	if text, found := statusMessages[code]; found {
		return text
	}
	return unknownStatusText
}

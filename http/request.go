package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyRequest     = errors.New("http: connection closed before any data was received")
	ErrMalformedRequest = errors.New("http: malformed request")
	ErrUnexpectedEOF    = errors.New("http: connection closed before the body was complete")
	ErrNoCookie         = errors.New("http: named cookie not present")
)

type Request struct {
	ID       string
	Method   string
	Target   string
	Resource ResourceIdentifier
	Protocol string
	// Headers keep the client's spelling of each name; a repeated name keeps
	// its last value.
	Headers map[string]string
	// Body is a view into the receive buffer, exactly Content-Length bytes.
	Body []byte

	data []byte
	conn *Conn
	ctx  context.Context
}

// NewRequest builds a request that did not come off the wire, for tests and
// internal dispatch.
func NewRequest(method, target string, body []byte) *Request {
	return &Request{
		Method:   strings.ToUpper(method),
		Target:   target,
		Resource: ParseResourceIdentifier(target),
		Protocol: protocolHttp11,
		Headers:  make(map[string]string),
		Body:     body,
		ctx:      context.Background(),
	}
}

func (req *Request) Context() context.Context {
	if req.ctx == nil {
		return context.Background()
	}
	return req.ctx
}

func (req *Request) WithContext(ctx context.Context) *Request {
	req.ctx = ctx
	return req
}

func (req *Request) RemoteAddr() string {
	if req.conn == nil {
		return ""
	}
	return req.conn.RemoteAddr()
}

// Header looks the name up as sent, then case-insensitively.
func (req *Request) Header(name string) (string, bool) {
	if value, found := req.Headers[name]; found {
		return value, true
	}

	for key, value := range req.Headers {
		if strings.EqualFold(key, name) {
			return value, true
		}
	}

	return "", false
}

func (req *Request) Cookies() map[string]string {
	result := make(map[string]string)

	header, found := req.Header(headerCookie)
	if !found {
		return result
	}

	for _, cookie := range ParseCookies(header) {
		result[cookie.Name] = cookie.Value
	}

	return result
}

func (req *Request) Cookie(name string) (string, error) {
	value, found := req.Cookies()[name]
	if !found {
		return "", ErrNoCookie
	}
	return value, nil
}

// ReadRequest frames one request off conn: it accumulates bytes until the
// header terminator, then keeps reading until Content-Length body bytes are
// buffered. Any error means no response should be written.
func ReadRequest(ctx context.Context, conn *Conn) (*Request, error) {
	var data []byte
	headersEnd := -1

	for headersEnd < 0 && !conn.Bad() && !conn.EOF() {
		chunk, err := conn.Receive(DefaultReceiveSize)

		searchFrom := len(data) - len(headerTerminator) + 1
		if searchFrom < 0 {
			searchFrom = 0
		}
		data = append(data, chunk...)

		if i := bytes.Index(data[searchFrom:], headerTerminator); i >= 0 {
			headersEnd = searchFrom + i
		}

		if err != nil {
			break
		}
	}

	if headersEnd < 0 {
		// Browsers open connections speculatively and close them unused.
		if len(data) == 0 {
			return nil, ErrEmptyRequest
		}
		return nil, fmt.Errorf("%w: stream ended after %d bytes without a header terminator", ErrMalformedRequest, len(data))
	}

	requestLine, headerBlock, _ := bytes.Cut(data[:headersEnd], []byte("\n"))

	headers := make(map[string]string)
	contentLength := -1
	for _, line := range bytes.Split(headerBlock, []byte("\n")) {
		name, value, found := bytes.Cut(line, []byte(":"))
		if !found {
			continue
		}

		key := string(trimSpace(name))
		value = trimSpace(value)
		headers[key] = string(value)

		if strings.EqualFold(key, headerContentLength) {
			n, err := atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: invalid Content-Length %q", ErrMalformedRequest, value)
			}
			contentLength = n
		}
	}

	bodyStart := headersEnd + len(headerTerminator)
	if contentLength < 0 {
		contentLength = len(data) - bodyStart
	}

	for len(data)-bodyStart < contentLength {
		want := contentLength - (len(data) - bodyStart)
		if want > DefaultReceiveSize {
			want = DefaultReceiveSize
		}

		chunk, err := conn.Receive(want)
		data = append(data, chunk...)
		if err != nil && len(data)-bodyStart < contentLength {
			return nil, fmt.Errorf("%w: %d of %d bytes: %w", ErrUnexpectedEOF, len(data)-bodyStart, contentLength, err)
		}
	}

	method, rest, found := bytes.Cut(trimSpace(requestLine), []byte(" "))
	if !found || len(method) == 0 {
		return nil, fmt.Errorf("%w: no method in request line", ErrMalformedRequest)
	}

	target, protocol, _ := bytes.Cut(rest, []byte(" "))
	if !bytes.HasPrefix(protocol, protocolPrefix) {
		return nil, fmt.Errorf("%w: unrecognised protocol %q", ErrMalformedRequest, protocol)
	}

	return &Request{
		Method:   toUpper(method),
		Target:   string(target),
		Resource: ParseResourceIdentifier(string(target)),
		Protocol: string(protocol),
		Headers:  headers,
		Body:     data[bodyStart : bodyStart+contentLength],
		data:     data,
		conn:     conn,
		ctx:      ctx,
	}, nil
}

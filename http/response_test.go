package http

import (
	"errors"
	"strings"
	"testing"

	"github.com/freekieb7/loam/test"
)

func TestResponseSerialize_Basic(t *testing.T) {
	res := Text(StatusOK, "hello, world!")

	payload, err := res.Serialize(MethodGet)
	if err != nil {
		t.Fatal(err)
	}

	want := "HTTP/1.1 200 OK\r\n" +
		"Connection: close\r\n" +
		"Content-Length: 13\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello, world!\r\n"
	test.AssertEqual(t, want, string(payload))
}

func TestResponseSerialize_HeadSkipsBody(t *testing.T) {
	produced := false
	res := NewResponse(StatusOK, DeferredBody(func() ([]byte, error) {
		produced = true
		return []byte("large file"), nil
	}))

	payload, err := res.Serialize(MethodHead)
	if err != nil {
		t.Fatal(err)
	}

	test.AssertTrue(t, !produced, "HEAD must not produce the body")
	test.AssertEqual(t, "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\n", string(payload))
}

func TestResponseSerialize_ConnectionAlwaysClosed(t *testing.T) {
	res := Redirect(StatusFound, "/")

	payload, err := res.Serialize(MethodPost)
	if err != nil {
		t.Fatal(err)
	}

	got := string(payload)
	if !strings.HasPrefix(got, "HTTP/1.1 302 Found\r\n") {
		t.Errorf("missing or incorrect status line: got %q", got)
	}
	if !strings.Contains(got, "Connection: close\r\n") {
		t.Errorf("missing connection header: got %q", got)
	}
	if !strings.Contains(got, "Location: /\r\n") {
		t.Errorf("missing location header: got %q", got)
	}
}

func TestResponseSerialize_KeepsExplicitContentLength(t *testing.T) {
	res := NewResponse(StatusOK, StringBody("abc"))
	res.SetHeader("Content-Length", "3")

	payload, err := res.Serialize(MethodGet)
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, 1, strings.Count(string(payload), "Content-Length"))
}

func TestResponseSerialize_ProduceError(t *testing.T) {
	failure := errors.New("disk gone")
	res := NewResponse(StatusOK, DeferredBody(func() ([]byte, error) {
		return nil, failure
	}))

	if _, err := res.Serialize(MethodGet); !errors.Is(err, failure) {
		t.Errorf("expected produce error, got %v", err)
	}
}

func TestResponse_ProduceOnce(t *testing.T) {
	calls := 0
	res := NewResponse(StatusOK, DeferredBody(func() ([]byte, error) {
		calls++
		return []byte("x"), nil
	}))

	res.Produce()
	res.Produce()

	test.AssertEqual(t, 1, calls)
}

func TestStatusText(t *testing.T) {
	test.AssertEqual(t, "Service Unavailable", StatusText(StatusServiceUnavailable))
	test.AssertEqual(t, "Switching Protocols", StatusText(StatusSwitchingProtocols))
	test.AssertEqual(t, "<???>", StatusText(299))
}

func TestCookieString_Session(t *testing.T) {
	cookie := Cookie{
		Name:     "sessionId",
		Value:    "ABC",
		MaxAge:   3600,
		SameSite: SameSiteStrictMode,
	}

	test.AssertEqual(t, "sessionId=ABC; Max-Age=3600; SameSite=Strict", cookie.String())

	cookie.Delete()
	test.AssertEqual(t, "sessionId=; Expires=Thu, 01 Jan 1970 00:00:01 GMT; Max-Age=0; SameSite=Strict", cookie.String())
}

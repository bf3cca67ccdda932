package http

import (
	"strconv"
	"strings"
	"time"
)

type SameSite int

const (
	SameSiteDefaultMode SameSite = iota + 1
	SameSiteLaxMode
	SameSiteStrictMode
	SameSiteNoneMode
)

const cookieTimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// Cookie is written to clients through Set-Cookie. Requests only carry the
// name and value.
type Cookie struct {
	Name  string
	Value string

	Path     string
	Expires  time.Time
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite SameSite
}

// String renders the Set-Cookie header value.
func (c *Cookie) String() string {
	var b strings.Builder

	b.WriteString(c.Name)
	b.WriteByte('=')
	b.WriteString(c.Value)

	if c.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(c.Path)
	}

	if !c.Expires.IsZero() {
		b.WriteString("; Expires=")
		b.WriteString(c.Expires.UTC().Format(cookieTimeFormat))
	}

	// negative means delete now
	switch {
	case c.MaxAge > 0:
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		b.WriteString("; Max-Age=0")
	}

	if c.Secure {
		b.WriteString("; Secure")
	}
	if c.HttpOnly {
		b.WriteString("; HttpOnly")
	}

	switch c.SameSite {
	case SameSiteLaxMode:
		b.WriteString("; SameSite=Lax")
	case SameSiteStrictMode:
		b.WriteString("; SameSite=Strict")
	case SameSiteNoneMode:
		b.WriteString("; SameSite=None")
	}

	return b.String()
}

// Delete turns the cookie into one that makes the client drop it.
func (c *Cookie) Delete() {
	c.Value = ""
	c.MaxAge = -1
	c.Expires = time.Unix(1, 0)
}

// ParseCookies splits a Cookie request header into its name=value pairs.
// Pairs without '=' or with an empty name are skipped.
func ParseCookies(header string) []Cookie {
	var cookies []Cookie

	for _, part := range strings.Split(header, ";") {
		name, value, found := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			continue
		}

		cookies = append(cookies, Cookie{Name: name, Value: strings.TrimSpace(value)})
	}

	return cookies
}

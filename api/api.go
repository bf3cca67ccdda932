package api

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/freekieb7/loam/http"
	"github.com/freekieb7/loam/session"
	"github.com/freekieb7/loam/upload"
	"github.com/freekieb7/loam/validation"
)

// CredentialsFunc decides whether a login attempt may start a session.
type CredentialsFunc func(username, password string) bool

// AcceptAll lets every login through. It is a placeholder, not a security
// boundary.
func AcceptAll(username, password string) bool {
	return true
}

var loginRules = map[string][]string{
	"username": {"present", "single"},
	"password": {"present", "single"},
}

var chunkRules = map[string][]string{
	"id": {"present", "single", "integer"},
}

type sessionKey struct{}

// Handlers answers the application endpoints on top of the session and
// upload registries.
type Handlers struct {
	Sessions    *session.Registry
	Uploads     *upload.Registry
	Credentials CredentialsFunc
}

func NewHandlers(sessions *session.Registry, uploads *upload.Registry) *Handlers {
	return &Handlers{
		Sessions:    sessions,
		Uploads:     uploads,
		Credentials: AcceptAll,
	}
}

// Login reads a form encoded username and password, starts a session and
// redirects to the root page with the session cookie set.
func (h *Handlers) Login(req *http.Request) (*http.Response, error) {
	form := http.ParseQuery(string(req.Body))

	if violations := validation.ValidateForm(form, loginRules); !violations.IsEmpty() {
		return nil, http.Error(http.StatusBadRequest, violations)
	}

	username, _ := form.Get("username")
	password, _ := form.Get("password")

	if !h.Credentials(username, password) {
		return nil, http.Errorf(http.StatusUnauthorized, "login rejected for %q", username)
	}

	handle, err := h.Sessions.Create()
	if err != nil {
		return nil, err
	}
	handle.Write("username", username)

	return http.Redirect(http.StatusFound, "/").SetCookie(http.Cookie{
		Name:     session.CookieName,
		Value:    handle.ID(),
		MaxAge:   int(session.Lifetime.Seconds()),
		SameSite: http.SameSiteStrictMode,
	}), nil
}

// Logout ends the caller's session, if any, and expires the cookie.
func (h *Handlers) Logout(req *http.Request) (*http.Response, error) {
	if id, err := req.Cookie(session.CookieName); err == nil {
		if err := h.Sessions.Close(id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return nil, err
		}
	}

	cookie := http.Cookie{
		Name:     session.CookieName,
		SameSite: http.SameSiteStrictMode,
	}
	cookie.Delete()

	return http.Redirect(http.StatusFound, "/").SetCookie(cookie), nil
}

// Announce answers an upload manifest with one announcement line per entry.
func (h *Handlers) Announce(req *http.Request) (*http.Response, error) {
	announcements, err := h.Uploads.AnnounceManifest(req.Body)
	if err != nil {
		if errors.Is(err, upload.ErrBadManifest) {
			return nil, http.Error(http.StatusBadRequest, err)
		}
		return nil, err
	}

	var b strings.Builder
	for _, announcement := range announcements {
		b.WriteString(announcement.String())
		b.WriteByte('\n')
	}

	return http.Text(http.StatusOK, b.String()), nil
}

// AppendChunk appends the raw request body to the transfer named by the id
// query parameter.
func (h *Handlers) AppendChunk(req *http.Request) (*http.Response, error) {
	if violations := validation.ValidateForm(req.Resource.Query, chunkRules); !violations.IsEmpty() {
		return nil, http.Error(http.StatusBadRequest, violations)
	}

	value, _ := req.Resource.Query.Get("id")
	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return nil, http.Error(http.StatusBadRequest, err)
	}

	if _, err := h.Uploads.Append(uint32(id), req.Body); err != nil {
		if errors.Is(err, upload.ErrUnknownTransfer) {
			return nil, http.Error(http.StatusForbidden, err)
		}
		return nil, err
	}

	return http.NewResponse(http.StatusOK, nil), nil
}

// Session returns the live session named by the request's cookie. A
// session already resolved by RequireSession is reused.
func (h *Handlers) Session(req *http.Request) session.Handle {
	if handle, found := req.Context().Value(sessionKey{}).(session.Handle); found {
		return handle
	}

	id, err := req.Cookie(session.CookieName)
	if err != nil {
		return session.Handle{}
	}

	return h.Sessions.Lookup(id)
}

// RequireSession sends visitors without a live session to the login page.
func (h *Handlers) RequireSession(next http.Handler) http.Handler {
	return func(req *http.Request) (*http.Response, error) {
		handle := h.Session(req)
		if !handle.Valid() {
			return http.Redirect(http.StatusFound, "/login"), nil
		}

		return next(req.WithContext(context.WithValue(req.Context(), sessionKey{}, handle)))
	}
}

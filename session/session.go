package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freekieb7/loam/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	CookieName = "sessionId"
	IDLength   = 64
	// Lifetime is the sliding window; every successful Lookup restarts it.
	Lifetime = time.Hour
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var ErrSessionNotFound = errors.New("session: session not found")

type session struct {
	id         string
	attributes map[string]string
	event      *schedule.Event

	// serialises prolonging so concurrent lookups never observe the event
	// between its cancel and re-add
	prolong sync.Mutex
}

// Registry holds the live login sessions. Each session expires through its
// own timed event Lifetime after it was last looked up.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	events   *schedule.Registry

	created metric.Int64Counter
}

func NewRegistry(events *schedule.Registry) *Registry {
	created, err := otel.Meter("github.com/freekieb7/loam/session").Int64Counter("session.created",
		metric.WithDescription("Login sessions created"),
		metric.WithUnit("{session}"))
	if err != nil {
		otel.Handle(err)
	}

	return &Registry{
		sessions: make(map[string]*session),
		events:   events,
		created:  created,
	}
}

// Create starts a new session with a fresh id that no live session uses.
func (r *Registry) Create() (Handle, error) {
	s := &session{attributes: make(map[string]string)}

	r.mu.Lock()
	for {
		id, err := newID()
		if err != nil {
			r.mu.Unlock()
			return Handle{}, err
		}
		if _, found := r.sessions[id]; !found {
			s.id = id
			break
		}
	}
	s.event = schedule.NewEvent(r.events.Now().Add(Lifetime), func() {
		r.expire(s)
	})
	r.sessions[s.id] = s
	r.mu.Unlock()

	r.events.Add(s.event)
	r.created.Add(context.Background(), 1)

	return Handle{registry: r, session: s}, nil
}

// Lookup returns a handle for id and prolongs the session. The handle is
// empty when no live session has that id.
func (r *Registry) Lookup(id string) Handle {
	r.mu.Lock()
	s, found := r.sessions[id]
	r.mu.Unlock()

	if !found {
		return Handle{}
	}

	s.prolong.Lock()
	defer s.prolong.Unlock()

	// Not rescheduled means the expiry fired or a logout got there first.
	if !r.events.Reschedule(s.event, r.events.Now().Add(Lifetime)) {
		return Handle{}
	}

	return Handle{registry: r, session: s}
}

// Close ends the session with id right away.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, found := r.sessions[id]
	if found {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	r.events.Cancel(s.event)
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

func (r *Registry) expire(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
		slog.Debug("session expired")
	}
}

// newID draws IDLength characters from idAlphabet, rejecting the bytes that
// would bias the distribution.
func newID() (string, error) {
	const limit = 256 - 256%len(idAlphabet)

	id := make([]byte, 0, IDLength)
	buf := make([]byte, IDLength)

	for len(id) < IDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("session: reading random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			id = append(id, idAlphabet[int(b)%len(idAlphabet)])
			if len(id) == IDLength {
				break
			}
		}
	}

	return string(id), nil
}

// Handle binds a request to one session. The zero Handle stands for "no
// session".
type Handle struct {
	registry *Registry
	session  *session
}

func (h Handle) Valid() bool {
	return h.session != nil
}

func (h Handle) ID() string {
	if h.session == nil {
		return ""
	}
	return h.session.id
}

func (h Handle) Read(key string) (string, bool) {
	if h.session == nil {
		return "", false
	}

	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()

	value, found := h.session.attributes[key]
	return value, found
}

// Write stores value under key and returns the value it replaced.
func (h Handle) Write(key, value string) (string, bool) {
	if h.session == nil {
		return "", false
	}

	h.registry.mu.Lock()
	defer h.registry.mu.Unlock()

	previous, found := h.session.attributes[key]
	h.session.attributes[key] = value
	return previous, found
}

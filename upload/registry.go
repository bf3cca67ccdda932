package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"time"

	"github.com/freekieb7/loam/filesystem"
	"github.com/freekieb7/loam/schedule"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Lifetime is fixed from the announcement; appending does not extend it.
const Lifetime = time.Hour

var ErrUnknownTransfer = errors.New("upload: unknown transfer")

type transfer struct {
	id        uint32
	path      string
	file      io.WriteCloser
	size      int64
	remaining int64
	event     *schedule.Event
}

// Registry tracks the file transfers that were announced but have not
// received all their bytes yet.
type Registry struct {
	mu        sync.Mutex
	transfers map[uint32]*transfer

	dir    string
	fs     filesystem.Filesystem
	events *schedule.Registry

	written metric.Int64Counter
	expired metric.Int64Counter
}

// NewRegistry stores uploads in dir, which is resolved to an absolute path
// so announcements name files independent of the working directory.
func NewRegistry(dir string, fs filesystem.Filesystem, events *schedule.Registry) (*Registry, error) {
	abs, err := fs.GetAbsolutePath(dir)
	if err != nil {
		return nil, fmt.Errorf("upload: resolving %s: %w", dir, err)
	}

	registry := &Registry{
		transfers: make(map[uint32]*transfer),
		dir:       abs,
		fs:        fs,
		events:    events,
	}

	meter := otel.Meter("github.com/freekieb7/loam/upload")

	registry.written, err = meter.Int64Counter("upload.bytes",
		metric.WithDescription("Bytes appended to transfers"),
		metric.WithUnit("By"))
	if err != nil {
		otel.Handle(err)
	}
	registry.expired, err = meter.Int64Counter("upload.transfers.expired",
		metric.WithDescription("Transfers dropped before all bytes arrived"),
		metric.WithUnit("{transfer}"))
	if err != nil {
		otel.Handle(err)
	}

	return registry, nil
}

// AnnounceManifest announces every entry of a manifest body. The manifest
// is validated as a whole before any file is created, and a failing entry
// discards the transfers this call already opened.
func (r *Registry) AnnounceManifest(body []byte) ([]Announcement, error) {
	entries, err := ParseManifest(body)
	if err != nil {
		return nil, err
	}

	announcements := make([]Announcement, 0, len(entries))
	for _, entry := range entries {
		announcement, err := r.Announce(entry.Name, entry.Size)
		if err != nil {
			for _, opened := range announcements {
				if !opened.Existed {
					r.discard(opened.ID)
				}
			}
			return nil, err
		}
		announcements = append(announcements, announcement)
	}

	return announcements, nil
}

// Announce opens a transfer for name below the upload directory. An
// existing destination is never overwritten: it is reported with ID 0.
func (r *Registry) Announce(name string, size int64) (Announcement, error) {
	fileName, err := FileName(name)
	if err != nil {
		return Announcement{}, err
	}
	path := filepath.Join(r.dir, fileName)

	existing := Announcement{Size: size, Path: path, Existed: true}

	exists, err := r.fs.FileExists(path)
	if err != nil {
		return Announcement{}, fmt.Errorf("upload: checking %s: %w", path, err)
	}
	if exists {
		return existing, nil
	}

	file, err := r.fs.CreateExclusive(path)
	if err != nil {
		if errors.Is(err, filesystem.ErrFileAlreadyExists) {
			return existing, nil
		}
		return Announcement{}, fmt.Errorf("upload: creating %s: %w", path, err)
	}

	t := &transfer{
		path:      path,
		file:      file,
		size:      size,
		remaining: size,
	}
	t.event = schedule.NewEvent(r.events.Now().Add(Lifetime), func() {
		r.expire(t)
	})

	r.mu.Lock()
	for t.id == 0 {
		id := rand.Uint32()
		if _, taken := r.transfers[id]; !taken {
			t.id = id
		}
	}
	r.transfers[t.id] = t
	r.mu.Unlock()

	r.events.Add(t.event)

	slog.Debug("transfer announced", "id", t.id, "path", path, "size", size)

	return Announcement{ID: t.id, Size: size, Path: path}, nil
}

// Append writes as much of chunk as the transfer still expects and returns
// the number of bytes applied. Excess bytes are dropped without error. The
// transfer completes, and disappears, once all declared bytes arrived.
func (r *Registry) Append(id uint32, chunk []byte) (int, error) {
	r.mu.Lock()

	t, found := r.transfers[id]
	if !found {
		r.mu.Unlock()
		return 0, fmt.Errorf("%w: %d", ErrUnknownTransfer, id)
	}

	if int64(len(chunk)) > t.remaining {
		chunk = chunk[:t.remaining]
	}

	n, err := t.file.Write(chunk)
	t.remaining -= int64(n)

	done := err != nil || t.remaining == 0
	if done {
		delete(r.transfers, id)
		if closeErr := t.file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	r.mu.Unlock()

	r.written.Add(context.Background(), int64(n))

	// Outside the lock: an expiry callback blocked on r.mu must be able to
	// finish before Cancel stops waiting for it.
	if done {
		r.events.Cancel(t.event)
	}

	if err != nil {
		return n, fmt.Errorf("upload: writing %s: %w", t.path, err)
	}

	if done {
		slog.Info("transfer complete", "id", id, "path", t.path, "size", t.size)
	}

	return n, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.transfers)
}

// Close abandons every open transfer, leaving partial files in place.
func (r *Registry) Close() error {
	r.mu.Lock()
	transfers := r.transfers
	r.transfers = make(map[uint32]*transfer)

	var errs []error
	for _, t := range transfers {
		if err := t.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("upload: closing %s: %w", t.path, err))
		}
	}
	r.mu.Unlock()

	for _, t := range transfers {
		r.events.Cancel(t.event)
	}

	return errors.Join(errs...)
}

// discard drops a transfer nobody was told about, removing its file.
func (r *Registry) discard(id uint32) {
	r.mu.Lock()
	t, found := r.transfers[id]
	if found {
		delete(r.transfers, id)
	}
	r.mu.Unlock()

	if !found {
		return
	}

	r.events.Cancel(t.event)

	if err := t.file.Close(); err != nil {
		slog.Error("closing discarded transfer", "id", id, "path", t.path, "error", err)
	}
	if err := r.fs.RemoveFile(t.path); err != nil {
		slog.Error("removing discarded transfer", "id", id, "path", t.path, "error", err)
	}
}

func (r *Registry) expire(t *transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.transfers[t.id] != t {
		return
	}
	delete(r.transfers, t.id)

	if err := t.file.Close(); err != nil {
		slog.Error("closing expired transfer", "id", t.id, "path", t.path, "error", err)
	}

	r.expired.Add(context.Background(), 1)
	slog.Warn("transfer expired", "id", t.id, "path", t.path, "missing", t.remaining)
}

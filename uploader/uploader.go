package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/freekieb7/loam/upload"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const DefaultChunkSize = 1 << 20

var (
	ErrRejected         = errors.New("uploader: server rejected request")
	ErrInvalidChunkSize = errors.New("uploader: chunk size must be positive")
)

// Result reports what happened to one local file.
type Result struct {
	Path         string
	Announcement upload.Announcement
	Sent         int64
}

// Client speaks the manifest and chunk protocol of the upload endpoints.
type Client struct {
	BaseURL   string
	ChunkSize int
	HTTP      *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		ChunkSize: DefaultChunkSize,
		HTTP: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Upload announces every file in one manifest and then streams the files
// the server accepted. Files that already exist remotely are skipped.
func (c *Client) Upload(ctx context.Context, paths ...string) ([]Result, error) {
	if c.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, c.ChunkSize)
	}

	var manifest strings.Builder
	results := make([]Result, len(paths))

	for i, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("uploader: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("uploader: %s is not a regular file", path)
		}

		results[i].Path = path
		manifest.WriteString(strconv.FormatInt(info.Size(), 10))
		manifest.WriteByte(' ')
		manifest.WriteString(filepath.Base(path))
		manifest.WriteByte('\n')
	}
	manifest.WriteByte('\n')

	reply, err := c.post(ctx, "/upload", []byte(manifest.String()))
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSuffix(string(reply), "\n"), "\n")
	if len(lines) != len(paths) {
		return nil, fmt.Errorf("uploader: %d announcements for %d files", len(lines), len(paths))
	}

	for i, line := range lines {
		announcement, err := upload.ParseAnnouncement(line)
		if err != nil {
			return nil, err
		}
		results[i].Announcement = announcement

		if announcement.Existed {
			slog.Info("skipping file that already exists", "path", results[i].Path, "remote", announcement.Path)
			continue
		}

		sent, err := c.send(ctx, results[i].Path, announcement.ID)
		results[i].Sent = sent
		if err != nil {
			return results, err
		}
	}

	return results, nil
}

func (c *Client) send(ctx context.Context, path string, id uint32) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("uploader: %w", err)
	}
	defer file.Close()

	target := "/uploadFile?id=" + strconv.FormatUint(uint64(id), 10)
	chunk := make([]byte, c.ChunkSize)

	var sent int64
	for first := true; ; first = false {
		n, err := io.ReadFull(file, chunk)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return sent, fmt.Errorf("uploader: reading %s: %w", path, err)
		}

		// An empty file still needs one request to complete its transfer.
		if n == 0 && !first {
			return sent, nil
		}

		if _, err := c.post(ctx, target, chunk[:n]); err != nil {
			return sent, err
		}
		sent += int64(n)

		if n < len(chunk) {
			return sent, nil
		}
	}
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	res, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("uploader: %w", err)
	}
	defer res.Body.Close()

	reply, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("uploader: reading reply: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s %s", ErrRejected, path, res.Status)
	}

	return reply, nil
}

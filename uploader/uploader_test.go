package uploader_test

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/freekieb7/loam/api"
	"github.com/freekieb7/loam/filesystem"
	"github.com/freekieb7/loam/http"
	"github.com/freekieb7/loam/schedule"
	"github.com/freekieb7/loam/session"
	"github.com/freekieb7/loam/test"
	"github.com/freekieb7/loam/upload"
	"github.com/freekieb7/loam/uploader"
)

func startServer(t *testing.T, uploadDir string) string {
	t.Helper()

	events := schedule.NewRegistry(schedule.WithManualReaping())
	uploads, err := upload.NewRegistry(uploadDir, filesystem.NewLocalFileSystem(), events)
	if err != nil {
		t.Fatal(err)
	}
	handlers := api.NewHandlers(session.NewRegistry(events), uploads)

	router := http.NewRouter()
	router.POST("/upload", handlers.Announce)
	router.POST("/uploadFile", handlers.AppendChunk)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	server := http.NewServer(router)
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(context.Background(), listener)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		server.Shutdown(ctx)
		<-done
		uploads.Close()
	})

	return "http://" + listener.Addr().String()
}

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()

	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}
}

func TestUpload(t *testing.T) {
	local := t.TempDir()
	remote := t.TempDir()

	big := bytes.Repeat([]byte("0123456789"), 1000)
	writeFile(t, filepath.Join(local, "big.bin"), big)
	writeFile(t, filepath.Join(local, "empty.txt"), nil)
	writeFile(t, filepath.Join(local, "taken.txt"), []byte("new"))
	writeFile(t, filepath.Join(remote, "taken.txt"), []byte("old"))

	client := uploader.NewClient(startServer(t, remote))
	client.ChunkSize = 4096

	results, err := client.Upload(context.Background(),
		filepath.Join(local, "big.bin"),
		filepath.Join(local, "empty.txt"),
		filepath.Join(local, "taken.txt"),
	)
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, 3, len(results))
	test.AssertEqual(t, int64(len(big)), results[0].Sent)
	test.AssertTrue(t, results[2].Announcement.Existed, "taken.txt already existed")
	test.AssertEqual(t, int64(0), results[2].Sent)

	for name, want := range map[string]string{
		"big.bin":   string(big),
		"empty.txt": "",
		"taken.txt": "old",
	} {
		got, err := os.ReadFile(filepath.Join(remote, name))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != want {
			t.Errorf("%s: expected %d bytes, got %d", name, len(want), len(got))
		}
	}
}

func TestUpload_MissingLocalFile(t *testing.T) {
	client := uploader.NewClient("http://127.0.0.1:1")

	_, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestUpload_RejectsChunkSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")
	writeFile(t, path, []byte("content"))

	for _, size := range []int{0, -1} {
		client := uploader.NewClient("http://127.0.0.1:1")
		client.ChunkSize = size

		if _, err := client.Upload(context.Background(), path); !errors.Is(err, uploader.ErrInvalidChunkSize) {
			t.Errorf("chunk size %d: expected ErrInvalidChunkSize, got %v", size, err)
		}
	}
}

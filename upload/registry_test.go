package upload_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/freekieb7/loam/filesystem"
	"github.com/freekieb7/loam/schedule"
	"github.com/freekieb7/loam/test"
	"github.com/freekieb7/loam/upload"
)

func newRegistry(t *testing.T) (*upload.Registry, *schedule.Registry, *test.Clock, string) {
	t.Helper()

	dir := t.TempDir()
	clock := test.NewClock()
	events := schedule.NewRegistry(schedule.WithClock(clock), schedule.WithManualReaping())
	registry, err := upload.NewRegistry(dir, filesystem.NewLocalFileSystem(), events)
	if err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		registry.Close()
	})

	return registry, events, clock, dir
}

func readFile(t *testing.T, path string) string {
	t.Helper()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(content)
}

func TestRoundTrip(t *testing.T) {
	registry, events, _, dir := newRegistry(t)

	announcement, err := registry.Announce("cat.png", 10)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertTrue(t, announcement.ID != 0, "fresh transfer has a non-zero id")
	test.AssertEqual(t, filepath.Join(dir, "cat.png"), announcement.Path)
	test.AssertTrue(t, !announcement.Existed, "destination did not exist")

	for _, chunk := range []string{"0123", "456789"} {
		if _, err := registry.Append(announcement.ID, []byte(chunk)); err != nil {
			t.Fatal(err)
		}
	}

	test.AssertEqual(t, "0123456789", readFile(t, announcement.Path))
	test.AssertEqual(t, 0, registry.Len())
	test.AssertEqual(t, 0, events.Len())

	if _, err := registry.Append(announcement.ID, []byte("x")); !errors.Is(err, upload.ErrUnknownTransfer) {
		t.Errorf("expected ErrUnknownTransfer, got %v", err)
	}
}

func TestAppendTruncatesSilently(t *testing.T) {
	registry, _, _, _ := newRegistry(t)

	announcement, err := registry.Announce("short.txt", 4)
	if err != nil {
		t.Fatal(err)
	}

	n, err := registry.Append(announcement.ID, []byte("abcdefgh"))
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, 4, n)
	test.AssertEqual(t, "abcd", readFile(t, announcement.Path))
}

func TestExpiryLeavesPartialFile(t *testing.T) {
	registry, events, clock, _ := newRegistry(t)

	announcement, err := registry.Announce("big.bin", 100)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := registry.Append(announcement.ID, []byte("part")); err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Minute)
	test.AssertEqual(t, 0, events.RunExpired())

	clock.Advance(2 * time.Minute)
	test.AssertEqual(t, 1, events.RunExpired())
	test.AssertEqual(t, 0, registry.Len())

	if _, err := registry.Append(announcement.ID, []byte("more")); !errors.Is(err, upload.ErrUnknownTransfer) {
		t.Errorf("expected ErrUnknownTransfer, got %v", err)
	}
	test.AssertEqual(t, "part", readFile(t, announcement.Path))
}

func TestExistingFileIsNotOverwritten(t *testing.T) {
	registry, _, _, dir := newRegistry(t)

	path := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(path, []byte("original"), 0644); err != nil {
		t.Fatal(err)
	}

	announcement, err := registry.Announce("keep.txt", 3)
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, upload.Announcement{ID: 0, Size: 3, Path: path, Existed: true}, announcement)
	test.AssertEqual(t, "original", readFile(t, path))
	test.AssertEqual(t, 0, registry.Len())
}

func TestAnnounceManifest(t *testing.T) {
	registry, _, _, dir := newRegistry(t)

	announcements, err := registry.AnnounceManifest([]byte("10 cat.png\n20 dog.png\n\n"))
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, 2, len(announcements))
	test.AssertTrue(t, announcements[0].ID != 0 && announcements[1].ID != 0, "ids are non-zero")
	test.AssertTrue(t, announcements[0].ID != announcements[1].ID, "ids are distinct")

	cat := announcements[0]
	test.AssertEqual(t, int64(10), cat.Size)
	test.AssertEqual(t, filepath.Join(dir, "cat.png"), cat.Path)
	test.AssertTrue(t, !cat.Existed, "cat.png did not exist")
	test.AssertTrue(t, !announcements[1].Existed, "dog.png did not exist")

	test.AssertEqual(t, strconv.FormatUint(uint64(cat.ID), 10)+";10;"+cat.Path+";false", cat.String())
	test.AssertEqual(t, 2, registry.Len())
}

func TestAnnounceStripsDirectories(t *testing.T) {
	registry, _, _, dir := newRegistry(t)

	for name, want := range map[string]string{
		"../../etc/passwd":     "passwd",
		`C:\Users\me\evil.txt`: "evil.txt",
		"/abs/path/file":       "file",
	} {
		announcement, err := registry.Announce(name, 1)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		test.AssertEqual(t, filepath.Join(dir, want), announcement.Path)
	}

	for _, name := range []string{"", "..", "dir/", `dir\..`} {
		if _, err := registry.Announce(name, 1); !errors.Is(err, upload.ErrBadManifest) {
			t.Errorf("%q: expected ErrBadManifest, got %v", name, err)
		}
	}
}

func TestMalformedManifestCreatesNothing(t *testing.T) {
	registry, _, _, dir := newRegistry(t)

	for _, body := range []string{
		"10 ok.txt\nten bad.txt\n",
		"10\n",
		"-1 negative.txt\n",
		"5 ok.txt\n5 ..\n",
	} {
		if _, err := registry.AnnounceManifest([]byte(body)); !errors.Is(err, upload.ErrBadManifest) {
			t.Errorf("%q: expected ErrBadManifest, got %v", body, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, 0, len(entries))
}

func TestParseManifest_StopsAtBlankLine(t *testing.T) {
	entries, err := upload.ParseManifest([]byte("3 a b.txt\r\n\r\nnot parsed at all"))
	if err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, []upload.Entry{{Size: 3, Name: "a b.txt"}}, entries)
}

func TestParseManifest_ExtraWhitespace(t *testing.T) {
	entries, err := upload.ParseManifest([]byte("10  cat.png\n4 \t dog.png\n"))
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, []upload.Entry{{Size: 10, Name: "cat.png"}, {Size: 4, Name: "dog.png"}}, entries)

	if _, err := upload.ParseManifest([]byte("10   \n")); !errors.Is(err, upload.ErrBadManifest) {
		t.Errorf("expected ErrBadManifest, got %v", err)
	}
}

type brokenFileSystem struct {
	filesystem.Filesystem
	broken string
}

func (fs *brokenFileSystem) CreateExclusive(path string) (io.WriteCloser, error) {
	if filepath.Base(path) == fs.broken {
		return nil, errors.New("disk full")
	}
	return fs.Filesystem.CreateExclusive(path)
}

func TestAnnounceManifest_FailureDiscardsOpenedTransfers(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.txt")
	if err := os.WriteFile(existing, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	events := schedule.NewRegistry(schedule.WithClock(test.NewClock()), schedule.WithManualReaping())
	fs := &brokenFileSystem{Filesystem: filesystem.NewLocalFileSystem(), broken: "c.txt"}
	registry, err := upload.NewRegistry(dir, fs, events)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	_, err = registry.AnnounceManifest([]byte("3 a.txt\n3 old.txt\n3 b.txt\n3 c.txt\n"))
	if err == nil || errors.Is(err, upload.ErrBadManifest) {
		t.Fatalf("expected an I/O error, got %v", err)
	}

	test.AssertEqual(t, 0, registry.Len())
	test.AssertEqual(t, 0, events.Len())
	test.AssertEqual(t, "old", readFile(t, existing))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, 1, len(entries))
}

func TestNewRegistry_ResolvesRelativeDirectory(t *testing.T) {
	dir := t.TempDir()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	relative, err := filepath.Rel(wd, dir)
	if err != nil {
		t.Skipf("no relative path to %s: %v", dir, err)
	}

	events := schedule.NewRegistry(schedule.WithManualReaping())
	registry, err := upload.NewRegistry(relative, filesystem.NewLocalFileSystem(), events)
	if err != nil {
		t.Fatal(err)
	}
	defer registry.Close()

	announcement, err := registry.Announce("cat.png", 1)
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, filepath.Join(dir, "cat.png"), announcement.Path)
}

func TestParseAnnouncement(t *testing.T) {
	announcement := upload.Announcement{ID: 42, Size: 7, Path: "upload/odd;name.txt", Existed: false}

	parsed, err := upload.ParseAnnouncement(announcement.String())
	if err != nil {
		t.Fatal(err)
	}
	test.AssertEqual(t, announcement, parsed)

	if _, err := upload.ParseAnnouncement("1;2"); err == nil {
		t.Error("expected an error for a truncated announcement")
	}
}

func TestCloseAbandonsTransfers(t *testing.T) {
	registry, events, _, _ := newRegistry(t)

	if _, err := registry.Announce("one.txt", 5); err != nil {
		t.Fatal(err)
	}
	if err := registry.Close(); err != nil {
		t.Fatal(err)
	}

	test.AssertEqual(t, 0, registry.Len())
	test.AssertEqual(t, 0, events.Len())
}

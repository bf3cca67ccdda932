package upload

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrBadManifest = errors.New("upload: malformed manifest")

// Entry is one manifest line: the size a client intends to send and the
// name it gave the file.
type Entry struct {
	Size int64
	Name string
}

// ParseManifest reads "<size> <filename>" lines until a blank line or the
// end of body. Every name must reduce to a usable file name.
func ParseManifest(body []byte) ([]Entry, error) {
	var entries []Entry

	for _, line := range bytes.Split(body, []byte("\n")) {
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			break
		}

		size, name, found := strings.Cut(string(line), " ")
		name = strings.TrimLeft(name, " \t")
		if !found || name == "" {
			return nil, fmt.Errorf("%w: line %q has no file name", ErrBadManifest, line)
		}

		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid size %q", ErrBadManifest, size)
		}

		if _, err := FileName(name); err != nil {
			return nil, err
		}

		entries = append(entries, Entry{Size: n, Name: name})
	}

	return entries, nil
}

// FileName keeps only the last path component of a client supplied name,
// for either separator.
func FileName(name string) (string, error) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	switch name {
	case "", ".", "..":
		return "", fmt.Errorf("%w: unusable file name %q", ErrBadManifest, name)
	}

	return name, nil
}

// Announcement is the server's answer to one manifest entry. ID 0 means
// the destination already existed and nothing will be written.
type Announcement struct {
	ID      uint32
	Size    int64
	Path    string
	Existed bool
}

// String renders the wire form id;declaredSize;resolvedPath;existedBefore.
func (a Announcement) String() string {
	return fmt.Sprintf("%d;%d;%s;%t", a.ID, a.Size, a.Path, a.Existed)
}

// ParseAnnouncement is the inverse of Announcement.String.
func ParseAnnouncement(line string) (Announcement, error) {
	id, rest, found := strings.Cut(line, ";")
	if !found {
		return Announcement{}, fmt.Errorf("upload: announcement %q has no size", line)
	}
	size, rest, found := strings.Cut(rest, ";")
	if !found {
		return Announcement{}, fmt.Errorf("upload: announcement %q has no path", line)
	}
	i := strings.LastIndexByte(rest, ';')
	if i < 0 {
		return Announcement{}, fmt.Errorf("upload: announcement %q has no existence flag", line)
	}
	path, existed := rest[:i], rest[i+1:]

	parsedID, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return Announcement{}, fmt.Errorf("upload: announcement id: %w", err)
	}
	parsedSize, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return Announcement{}, fmt.Errorf("upload: announcement size: %w", err)
	}
	parsedExisted, err := strconv.ParseBool(existed)
	if err != nil {
		return Announcement{}, fmt.Errorf("upload: announcement flag: %w", err)
	}

	return Announcement{
		ID:      uint32(parsedID),
		Size:    parsedSize,
		Path:    path,
		Existed: parsedExisted,
	}, nil
}

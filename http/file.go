package http

import (
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strconv"

	"github.com/freekieb7/loam/filesystem"
)

const defaultContentType = "application/octet-stream"

// FileResponder serves the file at filePath. The file is read when the
// response is written, so HEAD requests never touch its contents.
func FileResponder(fs filesystem.Filesystem, filePath string) Handler {
	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = defaultContentType
	}

	return func(req *Request) (*Response, error) {
		size, err := fs.FileSize(filePath)
		if err != nil {
			if errors.Is(err, filesystem.ErrFileNotFound) {
				return nil, Error(StatusNotFound, err)
			}
			return nil, err
		}

		res := NewContentResponse(StatusOK, DeferredBody(func() ([]byte, error) {
			return fs.ReadFile(filePath)
		}), contentType)
		res.Headers[headerContentLength] = strconv.FormatInt(size, 10)

		return res, nil
	}
}

// ServeDirectory registers a GET and HEAD FileResponder below prefix for
// every regular file directly inside dir. Symlinks to regular files count.
func ServeDirectory(router *Router, fs filesystem.Filesystem, dir, prefix string) error {
	infos, err := fs.ListDirectory(dir)
	if err != nil {
		return fmt.Errorf("http: serving directory %s: %w", dir, err)
	}

	for _, info := range infos {
		filePath := filepath.Join(dir, info.Name())

		isFile, err := fs.IsFile(filePath)
		if err != nil {
			return fmt.Errorf("http: serving directory %s: %w", dir, err)
		}
		if !isFile {
			continue
		}

		handler := FileResponder(fs, filePath)
		route := path.Join("/", prefix, info.Name())

		router.GET(route, handler)
		router.HEAD(route, handler)
	}

	return nil
}

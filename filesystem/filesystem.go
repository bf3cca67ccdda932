package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var (
	ErrFileNotFound      = fmt.Errorf("filesystem: file not found")
	ErrDirectoryNotFound = fmt.Errorf("filesystem: directory not found")
	ErrFileAlreadyExists = fmt.Errorf("filesystem: file already exists")
	ErrInvalidPath       = fmt.Errorf("filesystem: invalid path")
)

type Filesystem interface {
	ReadFile(path string) ([]byte, error)

	// CreateExclusive creates a new file for writing and fails with
	// ErrFileAlreadyExists when anything already exists at path.
	CreateExclusive(path string) (io.WriteCloser, error)

	RemoveFile(path string) error

	FileExists(path string) (bool, error)
	FileSize(path string) (int64, error)

	DirectoryExists(path string) (bool, error)
	CreateDirectory(path string) error
	ListDirectory(path string) ([]os.FileInfo, error)

	// IsFile reports whether path resolves, through symlinks, to a regular file.
	IsFile(path string) (bool, error)
	GetAbsolutePath(path string) (string, error)
}

type localFileSystem struct {
}

func NewLocalFileSystem() Filesystem {
	return &localFileSystem{}
}

func (filesystem *localFileSystem) CreateExclusive(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, ErrInvalidPath
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrFileAlreadyExists
		}
		return nil, err
	}

	return file, nil
}

func (filesystem *localFileSystem) CreateDirectory(path string) error {
	exists, err := filesystem.DirectoryExists(path)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := os.MkdirAll(path, 0770); err != nil {
		return err
	}

	return nil
}

func (filesystem *localFileSystem) DirectoryExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return info.IsDir(), nil
}

// FileExists reports whether anything, file or directory, exists at path.
func (filesystem *localFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (filesystem *localFileSystem) FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return 0, err
	}

	return info.Size(), nil
}

func (filesystem *localFileSystem) ListDirectory(path string) ([]os.FileInfo, error) {
	exists, err := filesystem.DirectoryExists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, path)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	infos := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}

	return infos, nil
}

func (filesystem *localFileSystem) IsFile(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

func (filesystem *localFileSystem) GetAbsolutePath(path string) (string, error) {
	return filepath.Abs(path)
}

func (filesystem *localFileSystem) ReadFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, err
	}

	return content, nil
}

func (filesystem *localFileSystem) RemoveFile(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return err
	}

	return nil
}

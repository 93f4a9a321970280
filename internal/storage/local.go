package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalElement stores files under a directory, one file per LFN.
type LocalElement struct {
	name string
	site string
	root string
}

// NewLocalElement returns a LocalElement rooted at root.
func NewLocalElement(name, site, root string) (*LocalElement, error) {
	if root == "" {
		return nil, fmt.Errorf("local storage element needs a root")
	}
	return &LocalElement{name: name, site: site, root: root}, nil
}

func (e *LocalElement) Name() string { return e.name }
func (e *LocalElement) Site() string { return e.site }

func (e *LocalElement) path(lfn string) (string, error) {
	rel := filepath.Clean("/" + strings.TrimPrefix(lfn, "LFN:"))
	if rel == "/" {
		return "", fmt.Errorf("empty LFN")
	}
	return filepath.Join(e.root, rel), nil
}

func (e *LocalElement) Put(_ context.Context, localPath, lfn string) error {
	dest, err := e.path(lfn)
	if err != nil {
		return err
	}
	return copyFile(localPath, dest)
}

func (e *LocalElement) Get(_ context.Context, lfn, localPath string) error {
	src, err := e.path(lfn)
	if err != nil {
		return err
	}
	return copyFile(src, localPath)
}

// copyFile copies through a temp file renamed over dest.
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

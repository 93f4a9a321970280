package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/internal/execution"
	"github.com/me/ilcdirac/internal/storage"
)

// Sandbox stages the input sandbox and input data of a job into its work
// directory.
type Sandbox struct {
	storage *storage.Registry
}

// NewSandbox returns a Sandbox fetching catalog files through reg. A nil
// registry only supports local files.
func NewSandbox(reg *storage.Registry) *Sandbox {
	return &Sandbox{storage: reg}
}

// IsLFN reports whether ref names a catalog file.
func IsLFN(ref string) bool {
	return strings.HasPrefix(ref, "LFN:") || strings.HasPrefix(ref, "lfn:")
}

// StageIn makes ref available in dir under its base name. Catalog files
// are fetched from the first storage element holding them.
func (s *Sandbox) StageIn(ctx context.Context, ref, dir string) error {
	dest := filepath.Join(dir, execution.LocalName(ref))
	if !IsLFN(ref) {
		if abs, _ := filepath.Abs(ref); abs == dest {
			return nil
		}
		return copyFile(ref, dest)
	}
	if s.storage == nil {
		return fmt.Errorf("stage in %s: no storage elements configured", ref)
	}
	lfn := strings.TrimPrefix(strings.TrimPrefix(ref, "LFN:"), "lfn:")
	var lastErr error
	for _, se := range s.storage.Names() {
		if lastErr = s.storage.Get(ctx, lfn, se, "", dest); lastErr == nil {
			return nil
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no storage element")
	}
	return fmt.Errorf("stage in %s: %w", ref, lastErr)
}

// copyFile copies src to dst, creating parent directories as needed.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

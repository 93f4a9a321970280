// Package processlist is the registry mapping physics process names to the
// generator tarball and input template that produce them.
package processlist

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/me/ilcdirac/pkg/model"
)

// document is the on-disk layout: Processes/<name>/<field>.
type document struct {
	Processes map[string]model.Process `yaml:"Processes"`
}

// ProcessList is the in-memory mirror of a process registry file.
// It is safe for concurrent use.
type ProcessList struct {
	mu    sync.RWMutex
	path  string
	ok    bool
	procs map[string]model.Process
}

// New returns an empty registry in the OK state, not bound to any file.
func New() *ProcessList {
	return &ProcessList{ok: true, procs: make(map[string]model.Process)}
}

// Load reads the registry at path. A missing file is not an error: the
// returned registry reports OK() == false and is empty.
func Load(path string) (*ProcessList, error) {
	pl := &ProcessList{path: path, procs: make(map[string]model.Process)}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return pl, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read process list: %w", err)
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse process list %s: %w", path, err)
	}
	for name, p := range doc.Processes {
		pl.procs[name] = p
	}
	pl.ok = true
	return pl, nil
}

// OK reports whether the registry was loaded from an existing file
// (or created empty with New).
func (pl *ProcessList) OK() bool {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.ok
}

// Path returns the file the registry was loaded from.
func (pl *ProcessList) Path() string {
	return pl.path
}

// Update inserts each record, replacing any existing record of the same name
// as a whole.
func (pl *ProcessList) Update(records map[string]model.Process) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	for name, p := range records {
		pl.procs[name] = p
	}
}

// Lookup returns the record registered under exactly name.
func (pl *ProcessList) Lookup(name string) (model.Process, bool) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	p, ok := pl.procs[name]
	return p, ok
}

// Exists reports whether name is registered.
func (pl *ProcessList) Exists(name string) bool {
	_, ok := pl.Lookup(name)
	return ok
}

// Names returns the registered process names, sorted.
func (pl *ProcessList) Names() []string {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	names := make([]string, 0, len(pl.procs))
	for name := range pl.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Processes returns a copy of all records.
func (pl *ProcessList) Processes() map[string]model.Process {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	out := make(map[string]model.Process, len(pl.procs))
	for k, v := range pl.procs {
		out[k] = v
	}
	return out
}

// GetCSPath returns the tarball path of a process, or "".
func (pl *ProcessList) GetCSPath(name string) string {
	p, _ := pl.Lookup(name)
	return p.TarBallCSPath
}

// GetInFile returns the generator input template of a process, or "".
func (pl *ProcessList) GetInFile(name string) string {
	p, _ := pl.Lookup(name)
	return p.InFile
}

// SaveError reports a failed save. TempPath, when set, holds the fully or
// partially written content for manual recovery.
type SaveError struct {
	Path     string
	TempPath string
	Err      error
}

func (e *SaveError) Error() string {
	if e.TempPath != "" {
		return fmt.Sprintf("save process list %s (temp file %s): %v", e.Path, e.TempPath, e.Err)
	}
	return fmt.Sprintf("save process list %s: %v", e.Path, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// Save writes the registry to path (or the load path when path is empty)
// through a temp file in the same directory renamed over the target.
// On failure the target is left untouched.
func (pl *ProcessList) Save(path string) error {
	if path == "" {
		path = pl.path
	}
	if path == "" {
		return &SaveError{Err: errors.New("no path given")}
	}

	pl.mu.RLock()
	doc := document{Processes: make(map[string]model.Process, len(pl.procs))}
	for k, v := range pl.procs {
		doc.Processes[k] = v
	}
	pl.mu.RUnlock()

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &SaveError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &SaveError{Path: path, TempPath: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &SaveError{Path: path, TempPath: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &SaveError{Path: path, TempPath: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &SaveError{Path: path, TempPath: tmpPath, Err: err}
	}

	pl.mu.Lock()
	pl.path = path
	pl.ok = true
	pl.mu.Unlock()
	return nil
}

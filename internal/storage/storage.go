// Package storage moves job files to and from storage elements addressed
// by LFN.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// Element is a storage element.
type Element interface {
	Name() string
	Site() string
	// Put uploads localPath under lfn.
	Put(ctx context.Context, localPath, lfn string) error
	// Get downloads lfn to localPath.
	Get(ctx context.Context, lfn, localPath string) error
}

// Element types.
const (
	TypeLocal = "local"
	TypeS3    = "s3"
)

// Config describes one storage element.
type Config struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Site     string `yaml:"site"`
	Root     string `yaml:"root"`     // local
	Bucket   string `yaml:"bucket"`   // s3
	Prefix   string `yaml:"prefix"`   // s3
	Region   string `yaml:"region"`   // s3
	Endpoint string `yaml:"endpoint"` // s3, for non-AWS object stores
}

// Registry holds the configured storage elements.
type Registry struct {
	elements map[string]Element
	logger   *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{elements: make(map[string]Element), logger: logger}
}

// Open builds a registry from configs.
func Open(ctx context.Context, configs []Config, logger *slog.Logger) (*Registry, error) {
	r := NewRegistry(logger)
	for _, c := range configs {
		var (
			el  Element
			err error
		)
		switch c.Type {
		case TypeLocal, "":
			el, err = NewLocalElement(c.Name, c.Site, c.Root)
		case TypeS3:
			el, err = NewS3Element(ctx, c)
		default:
			err = fmt.Errorf("unknown storage element type %q", c.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("storage element %s: %w", c.Name, err)
		}
		r.Register(el)
	}
	return r, nil
}

// Register adds or replaces an element.
func (r *Registry) Register(el Element) {
	r.elements[el.Name()] = el
}

// Lookup returns the element called name.
func (r *Registry) Lookup(name string) (Element, error) {
	el, ok := r.elements[name]
	if !ok {
		return nil, model.NewJobError(model.ErrNotFound, "Lookup",
			fmt.Sprintf("storage element %s not configured", name), map[string]any{"se": name})
	}
	return el, nil
}

// BySite returns the elements at site, sorted by name.
func (r *Registry) BySite(site string) []Element {
	var out []Element
	for _, el := range r.elements {
		if el.Site() == site {
			out = append(out, el)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names lists the configured element names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.elements))
	for n := range r.elements {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// PutFirst uploads localPath to the first of ses that accepts it and
// returns that element's name.
func (r *Registry) PutFirst(ctx context.Context, localPath, lfn string, ses []string) (string, error) {
	var failures []string
	for _, name := range ses {
		el, err := r.Lookup(name)
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}
		if err := el.Put(ctx, localPath, lfn); err != nil {
			r.logger.Warn("upload failed", "se", name, "lfn", lfn, "error", err)
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		r.logger.Info("uploaded", "se", name, "lfn", lfn)
		return name, nil
	}
	return "", fmt.Errorf("upload of %s failed on every storage element: %s", lfn, strings.Join(failures, "; "))
}

// Get downloads lfn from se, or from any element at site when se is empty.
func (r *Registry) Get(ctx context.Context, lfn, se, site, localPath string) error {
	var candidates []Element
	if se != "" {
		el, err := r.Lookup(se)
		if err != nil {
			return err
		}
		candidates = []Element{el}
	} else {
		candidates = r.BySite(site)
	}
	if len(candidates) == 0 {
		return model.NewJobError(model.ErrNotFound, "Get",
			fmt.Sprintf("no storage element at site %s", site), map[string]any{"site": site, "lfn": lfn})
	}
	var lastErr error
	for _, el := range candidates {
		if lastErr = el.Get(ctx, lfn, localPath); lastErr == nil {
			return nil
		}
		r.logger.Warn("download failed", "se", el.Name(), "lfn", lfn, "error", lastErr)
	}
	return lastErr
}

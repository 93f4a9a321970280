// Package software locates installed application releases on a worker node.
package software

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/me/ilcdirac/pkg/model"
)

// Config describes the software areas of a worker and the tarball each
// application release is installed from.
type Config struct {
	LocalArea  string `yaml:"local_area"`
	SharedArea string `yaml:"shared_area"`
	// Tarballs maps platform, then application, then version to the
	// tarball name of the release.
	Tarballs map[string]map[string]map[string]string `yaml:"tarballs"`
}

// Area resolves application releases against the local and shared areas.
type Area struct {
	cfg Config
}

// NewArea returns an Area for cfg.
func NewArea(cfg Config) *Area {
	return &Area{cfg: cfg}
}

// Release is an installed application release.
type Release struct {
	App     string
	Version string
	Root    string // software area the release was found in
	Dir     string // release directory
}

// TarballDir returns the directory name a release unpacks to.
func TarballDir(tarball string) string {
	tarball = strings.TrimSuffix(tarball, ".tgz")
	return strings.TrimSuffix(tarball, ".tar.gz")
}

// Locate finds app version for platform, looking in the local area first
// and in the shared area next.
func (a *Area) Locate(platform, app, version string) (*Release, error) {
	app = strings.ToLower(app)
	tarball := a.cfg.Tarballs[platform][app][version]
	if tarball == "" {
		return nil, model.NewJobError(model.ErrMissingSoftware, "Locate",
			fmt.Sprintf("no release of %s %s for %s", app, version, platform),
			map[string]any{"platform": platform, "app": app, "version": version})
	}
	dir := TarballDir(tarball)
	for _, root := range []string{a.cfg.LocalArea, a.cfg.SharedArea} {
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, dir)
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return &Release{App: app, Version: version, Root: root, Dir: candidate}, nil
		}
	}
	return nil, model.NewJobError(model.ErrMissingSoftware, "Locate",
		fmt.Sprintf("%s %s is installed in neither the local nor the shared area", app, version),
		map[string]any{"app": app, "version": version, "dir": dir})
}

// PathDirs returns the release directories to prepend to PATH.
func (r *Release) PathDirs() []string {
	return existing(r.Dir, "bin", "Executable")
}

// LibDirs returns the release directories to prepend to LD_LIBRARY_PATH.
func (r *Release) LibDirs() []string {
	return existing(r.Dir, "LDLibs", "lib")
}

// Path returns a file inside the release.
func (r *Release) Path(elem ...string) string {
	return filepath.Join(append([]string{r.Dir}, elem...)...)
}

func existing(root string, names ...string) []string {
	var out []string
	for _, n := range names {
		p := filepath.Join(root, n)
		if fi, err := os.Stat(p); err == nil && fi.IsDir() {
			out = append(out, p)
		}
	}
	return out
}

// RemoveLibc deletes the C library copies shipped inside a release library
// directory; they break on worker nodes with a different system libc.
// A missing directory is not an error.
func RemoveLibc(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var removed []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isLibc(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return removed, fmt.Errorf("remove %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}

func isLibc(name string) bool {
	if strings.HasPrefix(name, "libc.so") {
		return true
	}
	return strings.HasPrefix(name, "libc-") && strings.HasSuffix(name, ".so")
}

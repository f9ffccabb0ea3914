package mechanism

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// systemLibraryDirs are searched after every configured and environment-provided directory.
var systemLibraryDirs = []string{
	"/usr/local/lib",
	"/usr/local/lib64",
	"/usr/lib",
	"/usr/lib64",
	"/lib",
	"/lib64",
}

// ResolvedLibrary is the located shared library for one mechanism.
type ResolvedLibrary struct {
	Mechanism Mechanism
	Path      string // absolute path to the shared library
	Root      string // installation root: the library's grandparent directory
}

// Resolution holds every library resolved for a selection.
type Resolution struct {
	libs  map[Mechanism]ResolvedLibrary
	order []Mechanism
}

// Get returns the resolved library for m.
func (r *Resolution) Get(m Mechanism) (ResolvedLibrary, bool) {
	lib, ok := r.libs[m]
	return lib, ok
}

// Mechanisms returns the resolved mechanisms in canonical order.
func (r *Resolution) Mechanisms() []Mechanism {
	out := make([]Mechanism, len(r.order))
	copy(out, r.order)
	return out
}

// RootOf returns the installation root derived for m.
func (r *Resolution) RootOf(m Mechanism) string {
	return r.libs[m].Root
}

// Root returns the root of the last mechanism resolved in canonical order.
// This is the value exported as DTIO_ROOT; per-mechanism roots are available via RootOf.
func (r *Resolution) Root() string {
	if len(r.order) == 0 {
		return ""
	}
	return r.libs[r.order[len(r.order)-1]].Root
}

// Resolver locates mechanism libraries on a search path.
type Resolver struct {
	fs       afero.Fs
	platform Platform
	dirs     []string
}

// NewResolver builds a resolver whose search path is extraDirs, then the
// platform's library environment variables read through lookupEnv, then the
// system library directories.
func NewResolver(fs afero.Fs, platform Platform, extraDirs []string, lookupEnv func(string) (string, bool)) *Resolver {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if dir == "" || seen[dir] {
			return
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}

	for _, dir := range extraDirs {
		add(dir)
	}
	if lookupEnv != nil {
		for _, name := range platform.LibraryEnv {
			if value, ok := lookupEnv(name); ok {
				for _, dir := range filepath.SplitList(value) {
					add(dir)
				}
			}
		}
	}
	for _, dir := range systemLibraryDirs {
		add(dir)
	}

	return &Resolver{fs: fs, platform: platform, dirs: dirs}
}

// NewHostResolver returns a resolver for the local filesystem and process environment.
func NewHostResolver(extraDirs []string) *Resolver {
	return NewResolver(afero.NewOsFs(), HostPlatform(), extraDirs, os.LookupEnv)
}

// SearchPath returns the ordered directories the resolver searches.
func (r *Resolver) SearchPath() []string {
	out := make([]string, len(r.dirs))
	copy(out, r.dirs)
	return out
}

// Resolve finds the library for a single mechanism.
func (r *Resolver) Resolve(m Mechanism) (ResolvedLibrary, error) {
	if m.LibraryName() == "" {
		return ResolvedLibrary{}, fmt.Errorf("unknown interception mechanism '%s'", m)
	}

	fileName := r.platform.FileName(m)
	for _, dir := range r.dirs {
		candidate := filepath.Join(dir, fileName)
		info, err := r.fs.Stat(candidate)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		abs, err := filepath.Abs(candidate)
		if err != nil {
			return ResolvedLibrary{}, fmt.Errorf("failed to make %s absolute: %w", candidate, err)
		}

		return ResolvedLibrary{
			Mechanism: m,
			Path:      abs,
			Root:      filepath.Dir(filepath.Dir(abs)),
		}, nil
	}

	return ResolvedLibrary{}, &LibraryNotFoundError{Mechanism: m, Searched: r.SearchPath()}
}

// ResolveAll resolves every selected mechanism. It fails before any lookup when
// the selection is empty, and aborts on the first mechanism that cannot be found.
func (r *Resolver) ResolveAll(sel Selection) (*Resolution, error) {
	enabled := sel.Enabled()
	if len(enabled) == 0 {
		return nil, ErrNoMechanismSelected
	}

	res := &Resolution{libs: make(map[Mechanism]ResolvedLibrary, len(enabled))}
	for _, m := range enabled {
		lib, err := r.Resolve(m)
		if err != nil {
			return nil, err
		}
		if prev := res.Root(); prev != "" && prev != lib.Root {
			log.Printf("[WARN] Installation root for %s (%s) differs from %s; DTIO_ROOT will use %s",
				m, lib.Root, prev, lib.Root)
		}
		log.Printf("[INFO] Found %s at %s", r.platform.FileName(m), lib.Path)
		res.libs[m] = lib
		res.order = append(res.order, m)
	}

	return res, nil
}

// NewResolution builds a Resolution from already-located libraries, keeping canonical order.
func NewResolution(libs ...ResolvedLibrary) *Resolution {
	res := &Resolution{libs: make(map[Mechanism]ResolvedLibrary, len(libs))}
	for _, lib := range libs {
		res.libs[lib.Mechanism] = lib
	}
	for _, m := range All {
		if _, ok := res.libs[m]; ok {
			res.order = append(res.order, m)
		}
	}
	return res
}

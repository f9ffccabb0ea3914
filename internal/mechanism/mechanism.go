// Package mechanism resolves the shared libraries that implement each DTIO
// interception mechanism and derives their installation roots.
package mechanism

import (
	"fmt"
	"runtime"
	"strings"
)

// Mechanism identifies one I/O call-redirection layer.
type Mechanism string

const (
	POSIX Mechanism = "posix"
	STDIO Mechanism = "stdio"
	MPI   Mechanism = "mpi"
	HDF5  Mechanism = "hdf5"
)

// All lists every mechanism in canonical activation order.
// Preload chains and environment exports are always built in this order.
var All = []Mechanism{POSIX, STDIO, MPI, HDF5}

// libraryNames maps each mechanism to the logical name of its shared library.
var libraryNames = map[Mechanism]string{
	POSIX: "dtio_posix_interception",
	STDIO: "dtio_stdio_interception",
	MPI:   "dtio_mpi_interception",
	HDF5:  "dtio_vol_connector",
}

// exportVars maps each mechanism to the variable that carries its library path.
var exportVars = map[Mechanism]string{
	POSIX: "DTIO_POSIX",
	STDIO: "DTIO_STDIO",
	MPI:   "DTIO_MPI",
	HDF5:  "DTIO_VOL",
}

// LibraryName returns the logical library name, e.g. "dtio_posix_interception".
func (m Mechanism) LibraryName() string {
	return libraryNames[m]
}

// ExportVar returns the environment variable that records the resolved library path.
func (m Mechanism) ExportVar() string {
	return exportVars[m]
}

// Preloaded reports whether the mechanism is activated through the preload chain.
// HDF5 is loaded as a VOL plugin instead.
func (m Mechanism) Preloaded() bool {
	return m == POSIX || m == STDIO || m == MPI
}

// Parse converts a mechanism name (case-insensitive) into a Mechanism.
func Parse(name string) (Mechanism, error) {
	m := Mechanism(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := libraryNames[m]; !ok {
		return "", fmt.Errorf("unknown interception mechanism '%s' (must be 'posix', 'stdio', 'mpi', or 'hdf5')", name)
	}
	return m, nil
}

// Selection is the set of mechanisms requested for a deployment.
type Selection struct {
	POSIX bool `yaml:"posix"`
	STDIO bool `yaml:"stdio"`
	MPI   bool `yaml:"mpi"`
	HDF5  bool `yaml:"hdf5"`
}

// Enabled returns the selected mechanisms in canonical order.
func (s Selection) Enabled() []Mechanism {
	var enabled []Mechanism
	for _, m := range All {
		if s.Has(m) {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// Has reports whether m is selected.
func (s Selection) Has(m Mechanism) bool {
	switch m {
	case POSIX:
		return s.POSIX
	case STDIO:
		return s.STDIO
	case MPI:
		return s.MPI
	case HDF5:
		return s.HDF5
	}
	return false
}

// Empty reports whether no mechanism is selected.
func (s Selection) Empty() bool {
	return len(s.Enabled()) == 0
}

// Platform describes the host conventions for preloading shared libraries.
type Platform struct {
	PreloadVar    string // e.g. LD_PRELOAD
	ListSeparator string
	LibPrefix     string
	LibSuffix     string
	LibraryEnv    []string // variables holding library search directories
}

// Linux is the platform convention used on Linux hosts.
var Linux = Platform{
	PreloadVar:    "LD_PRELOAD",
	ListSeparator: ":",
	LibPrefix:     "lib",
	LibSuffix:     ".so",
	LibraryEnv:    []string{"LD_LIBRARY_PATH", "LIBRARY_PATH"},
}

// Darwin is the platform convention used on macOS hosts.
var Darwin = Platform{
	PreloadVar:    "DYLD_INSERT_LIBRARIES",
	ListSeparator: ":",
	LibPrefix:     "lib",
	LibSuffix:     ".dylib",
	LibraryEnv:    []string{"DYLD_LIBRARY_PATH", "LD_LIBRARY_PATH", "LIBRARY_PATH"},
}

// HostPlatform returns the convention for the running OS.
func HostPlatform() Platform {
	if runtime.GOOS == "darwin" {
		return Darwin
	}
	return Linux
}

// FileName returns the platform file name for a mechanism's library.
func (p Platform) FileName(m Mechanism) string {
	return p.LibPrefix + m.LibraryName() + p.LibSuffix
}

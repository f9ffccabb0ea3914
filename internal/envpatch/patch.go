// Package envpatch composes the environment mutations that activate DTIO
// interception in a child process.
package envpatch

import (
	"sort"
	"strings"
)

// Mode controls how a patch entry merges with the base environment.
type Mode int

const (
	// Append adds the value to a separator-delimited list, keeping existing entries first.
	Append Mode = iota
	// SetIfAbsent sets the value only when the variable is unset or empty.
	SetIfAbsent
	// Overwrite replaces any existing value.
	Overwrite
)

func (m Mode) String() string {
	switch m {
	case Append:
		return "append"
	case SetIfAbsent:
		return "set-if-absent"
	case Overwrite:
		return "overwrite"
	}
	return "unknown"
}

// Entry is a single environment mutation.
type Entry struct {
	Name      string
	Value     string
	Mode      Mode
	Separator string // only used by Append
}

// Patch is an ordered sequence of mutations. It is built per deployment
// attempt and consumed once by the process launcher.
type Patch struct {
	Entries []Entry
}

// Add appends an entry.
func (p *Patch) Add(e Entry) {
	p.Entries = append(p.Entries, e)
}

// Set appends an overwrite entry for name.
func (p *Patch) Set(name, value string) {
	p.Add(Entry{Name: name, Value: value, Mode: Overwrite})
}

// Names returns the distinct variable names touched by the patch, in first-touch order.
func (p *Patch) Names() []string {
	var names []string
	seen := make(map[string]bool)
	for _, e := range p.Entries {
		if !seen[e.Name] {
			seen[e.Name] = true
			names = append(names, e.Name)
		}
	}
	return names
}

// Apply returns a copy of base with every entry applied in order. base is not modified.
func (p *Patch) Apply(base Env) Env {
	out := base.Clone()
	for _, e := range p.Entries {
		current, exists := out[e.Name]
		switch e.Mode {
		case Append:
			out[e.Name] = appendList(current, e.Value, e.Separator)
		case SetIfAbsent:
			if !exists || current == "" {
				out[e.Name] = e.Value
			}
		case Overwrite:
			out[e.Name] = e.Value
		}
	}
	return out
}

// appendList appends value to a delimited list unless it is already present.
func appendList(list, value, sep string) string {
	if list == "" {
		return value
	}
	if listContains(list, value, sep) {
		return list
	}
	return list + sep + value
}

func listContains(list, value, sep string) bool {
	if list == "" {
		return false
	}
	for _, item := range strings.Split(list, sep) {
		if item == value {
			return true
		}
	}
	return false
}

// Env is a process environment keyed by variable name.
type Env map[string]string

// FromEnviron parses KEY=VALUE pairs as returned by os.Environ.
// Later duplicates win, matching how a process sees its environment.
func FromEnviron(environ []string) Env {
	env := make(Env, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		env[name] = value
	}
	return env
}

// Clone returns an independent copy.
func (e Env) Clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Environ returns KEY=VALUE pairs sorted by key, suitable for exec.Cmd.Env.
func (e Env) Environ() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+e[k])
	}
	return out
}

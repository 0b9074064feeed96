package env

import (
	"os"
	"regexp"
	"sort"
	"strings"
)

type Var map[string]string

// Env composes a child environment from the parent's and overrides.
type Env struct {
	base Var
}

// FromOS uses the current process environment as the base.
func FromOS() *Env { return FromList(os.Environ()) }

// FromList uses a KEY=VALUE list as the base.
func FromList(kvs []string) *Env {
	e := &Env{base: make(Var)}
	apply(e.base, kvs)
	return e
}

// Merge applies overrides (KEY=VALUE, later wins) on top of the base and
// expands ${VAR} references in override values against the composed map.
// Base values are not expanded. The result is sorted by key.
func (e *Env) Merge(overrides []string) []string {
	m := make(Var, len(e.base)+len(overrides))
	for k, v := range e.base {
		m[k] = v
	}
	own := make(Var)
	apply(own, overrides)
	for k, v := range own {
		m[k] = v
	}
	// expand against the unexpanded map so the result does not depend on order
	src := make(Var, len(m))
	for k, v := range m {
		src[k] = v
	}
	for k, v := range own {
		m[k] = expand(v, src)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

func apply(m Var, kvs []string) {
	for _, kv := range kvs {
		k, v, ok := strings.Cut(kv, "=")
		// skip malformed entries and the "=C:" style drive entries on Windows
		if !ok || k == "" {
			continue
		}
		m[k] = v
	}
}

var ref = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${VAR} once; unknown names become empty.
func expand(s string, m Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return ref.ReplaceAllStringFunc(s, func(match string) string {
		return m[match[2:len(match)-1]]
	})
}

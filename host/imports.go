package host

import (
	"reflect"
	"strings"
)

// Root is the Imports key for functions imported at the top level of a
// component rather than through an interface.
const Root = "$root"

// Interface maps function names to Go functions. Names may be given in
// WIT kebab-case or as lowerCamelCase or PascalCase aliases.
type Interface map[string]any

// Imports maps interface names such as "test:strings/imports" to their
// implementations.
type Imports map[string]Interface

// Host is a struct-based interface implementation. All exported methods
// except Namespace become functions named by their kebab-case form.
type Host interface {
	// Namespace returns the WIT interface name (e.g., "my:pkg/api@1.0.0").
	Namespace() string
}

// ExplicitRegistrar allows hosts to provide exact WIT function names
// when automatic PascalCase-to-kebab-case conversion doesn't apply
// (e.g., "[method]fields.append").
type ExplicitRegistrar interface {
	Register() map[string]any
}

// FromHost collects the functions of h.
func FromHost(h Host) Interface {
	if er, ok := h.(ExplicitRegistrar); ok {
		return Interface(er.Register())
	}

	out := make(Interface)
	rv := reflect.ValueOf(h)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		m := rt.Method(i)
		if !m.IsExported() || m.Name == "Namespace" {
			continue
		}
		out[ToKebab(m.Name)] = rv.Method(i).Interface()
	}
	return out
}

// Add registers h under its namespace, merging with functions already
// present for that interface.
func (imps Imports) Add(h Host) {
	ns := h.Namespace()
	iface := imps[ns]
	if iface == nil {
		iface = make(Interface)
		imps[ns] = iface
	}
	for name, fn := range FromHost(h) {
		iface[name] = fn
	}
}

// Merge returns a new table holding the entries of imps and others.
// Later tables win for functions defined twice.
func (imps Imports) Merge(others ...Imports) Imports {
	out := make(Imports, len(imps))
	for _, src := range append([]Imports{imps}, others...) {
		for ns, iface := range src {
			dst := out[ns]
			if dst == nil {
				dst = make(Interface, len(iface))
				out[ns] = dst
			}
			for name, fn := range iface {
				dst[name] = fn
			}
		}
	}
	return out
}

// Resolve finds the implementation of an interface. An exact name match
// wins; otherwise the highest compatible version of the same interface is
// used, and an unversioned implementation matches any version.
func (imps Imports) Resolve(name string) (Interface, bool) {
	if iface, ok := imps[name]; ok {
		return iface, true
	}

	base, want := SplitVersion(name)
	var (
		best    Interface
		bestVer *Version
		found   bool
	)
	for key, iface := range imps {
		kb, kv := SplitVersion(key)
		if kb != base {
			continue
		}
		switch {
		case kv == nil:
			if !found {
				best, found = iface, true
			}
		case want == nil || kv.Compatible(*want):
			if bestVer == nil || bestVer.less(*kv) {
				best, bestVer, found = iface, kv, true
			}
		}
	}
	return best, found
}

// Lookup finds a function by its WIT name or one of its Go-style aliases.
func (i Interface) Lookup(name string) (any, bool) {
	if fn, ok := i[name]; ok {
		return fn, true
	}
	if strings.HasPrefix(name, "[") {
		return nil, false
	}
	for _, alias := range []string{ToCamel(name), ToPascal(name)} {
		if fn, ok := i[alias]; ok {
			return fn, true
		}
	}
	return nil, false
}

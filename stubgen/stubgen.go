// Package stubgen generates TypeScript declaration stubs for the imports
// and exports of a component.
//
// Exports go to one file, <name>.d.ts, ending with a <Name>World interface
// that holds every exported interface and function. Each imported
// interface gets interfaces/<slug>.d.ts with a `declare module` block.
// Exported resources appear as a XStatic interface (constructor and
// static functions) and a XInstance interface (methods); imported
// resources are declared as classes.
package stubgen

import (
	"fmt"
	"sort"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/host"
	"github.com/wippyai/component-harness/linker"
)

// Options configures generation.
type Options struct {
	// Name is the base name of the world file; "component" by default.
	Name string
}

// File is one generated declaration file.
type File struct {
	Name    string
	Content string
}

type param struct {
	typ  wit.Type
	name string
}

type funcKind int

const (
	freeFunc funcKind = iota
	constructorFunc
	methodFunc
	staticFunc
)

// member is a function of an interface, classified by its WIT name.
type member struct {
	result   wit.Type
	name     string
	resource string
	params   []param
	kind     funcKind
}

func classify(sig linker.Signature) member {
	m := member{name: sig.Name, result: sig.Result}
	for _, p := range sig.Params {
		m.params = append(m.params, param{name: p.Name, typ: p.Type})
	}
	switch {
	case strings.HasPrefix(sig.Name, "[constructor]"):
		m.kind, m.resource = constructorFunc, strings.TrimPrefix(sig.Name, "[constructor]")
	case strings.HasPrefix(sig.Name, "[method]"):
		m.kind = methodFunc
		m.resource, m.name, _ = strings.Cut(strings.TrimPrefix(sig.Name, "[method]"), ".")
		if len(m.params) > 0 {
			m.params = m.params[1:]
		}
	case strings.HasPrefix(sig.Name, "[static]"):
		m.kind = staticFunc
		m.resource, m.name, _ = strings.Cut(strings.TrimPrefix(sig.Name, "[static]"), ".")
	}
	return m
}

// shortName is the interface part of a qualified name:
// "wasi:http/types@0.2.0" becomes "types".
func shortName(name string) string {
	base, _ := host.SplitVersion(name)
	if i := strings.LastIndexAny(base, "/:"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// Slug turns an interface name into a file name stem.
func Slug(name string) string {
	base, _ := host.SplitVersion(name)
	return strings.NewReplacer(":", "-", "/", "-").Replace(base)
}

// FromComponent describes c and generates its stubs.
func FromComponent(c *component.Component, opts Options) ([]File, error) {
	w, err := linker.Describe(c)
	if err != nil {
		return nil, fmt.Errorf("describe component: %w", err)
	}
	return Generate(w, opts), nil
}

// Generate renders the stubs of w. The world file comes first, followed
// by one file per imported interface in import order.
func Generate(w *linker.World, opts Options) []File {
	name := opts.Name
	if name == "" {
		name = "component"
	}

	owner := make(map[*wit.TypeDef]string)
	for _, imp := range w.Imports {
		for _, t := range imp.Types {
			if td, ok := t.(*wit.TypeDef); ok {
				owner[td] = imp.Name
			}
		}
	}

	files := []File{{Name: name + ".d.ts", Content: worldFile(w, name, owner)}}
	for _, imp := range w.Imports {
		if imp.Kind != "instance" {
			continue
		}
		files = append(files, File{
			Name:    "interfaces/" + Slug(imp.Name) + ".d.ts",
			Content: importFile(imp, owner),
		})
	}
	return files
}

func sortedTypes(types map[string]wit.Type) (named []*wit.TypeDef, resources []*wit.TypeDef) {
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		td, ok := types[n].(*wit.TypeDef)
		if !ok || td.Name == nil {
			continue
		}
		switch td.Kind.(type) {
		case *wit.Resource:
			resources = append(resources, td)
		case *wit.Own, *wit.Borrow:
		default:
			named = append(named, td)
		}
	}
	return named, resources
}

func worldFile(w *linker.World, name string, owner map[*wit.TypeDef]string) string {
	e := newEmitter("", "", owner)
	var body strings.Builder
	var world []string

	for _, ex := range w.Exports {
		switch ex.Kind {
		case "instance":
			iface := host.ToPascal(shortName(ex.Name))
			exportInterface(&body, e, iface, ex)
			world = append(world, fmt.Sprintf("%s: %s,", host.ToCamel(shortName(ex.Name)), iface))
		case "func":
			world = append(world, fmt.Sprintf("%s(%s): %s,",
				host.ToCamel(ex.Func.Name), e.paramsOf(ex.Func.Params), e.tsType(ex.Func.Result)))
		case "type":
			if td, ok := ex.Type.(*wit.TypeDef); ok {
				e.typeDef(td)
			}
		}
	}
	e.flush(&body)
	e.helpers(&body)

	var imports []string
	for _, imp := range w.Imports {
		if imp.Kind == "func" {
			imports = append(imports, fmt.Sprintf("%s(%s): %s,",
				host.ToCamel(imp.Func.Name), e.paramsOf(imp.Func.Params), e.tsType(imp.Func.Result)))
		}
	}
	e.flush(&body)

	var out strings.Builder
	e.importLines(&out)
	out.WriteString(body.String())
	if len(imports) > 0 {
		writeBlock(&out, fmt.Sprintf("export interface %sImports", host.ToPascal(name)), imports)
	}
	writeBlock(&out, fmt.Sprintf("export interface %sWorld", host.ToPascal(name)), world)
	return out.String()
}

func writeBlock(b *strings.Builder, head string, lines []string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(head + " {\n")
	for _, l := range lines {
		b.WriteString("  " + l + "\n")
	}
	b.WriteString("}\n")
}

func (e *emitter) paramsOf(ps []linker.Param) string {
	conv := make([]param, len(ps))
	for i, p := range ps {
		conv[i] = param{name: p.Name, typ: p.Type}
	}
	return e.params(conv)
}

// exportInterface writes the interface of an exported instance and the
// Static/Instance pair of each of its resources.
func exportInterface(b *strings.Builder, e *emitter, iface string, ex linker.Extern) {
	named, resources := sortedTypes(ex.Types)
	byResource := make(map[string][]member)
	var free []member
	for _, sig := range ex.Funcs {
		m := classify(sig)
		if m.kind == freeFunc {
			free = append(free, m)
		} else {
			byResource[m.resource] = append(byResource[m.resource], m)
		}
	}

	fmt.Fprintf(b, "export interface %s {\n", iface)
	for _, res := range resources {
		n := host.ToPascal(*res.Name)
		fmt.Fprintf(b, "  %s: %sStatic,\n", n, n)
	}
	for _, m := range free {
		fmt.Fprintf(b, "  %s(%s): %s,\n", host.ToCamel(m.name), e.params(m.params), e.tsType(m.result))
	}
	b.WriteString("}\n")

	for _, res := range resources {
		n := host.ToPascal(*res.Name)
		members := byResource[*res.Name]
		fmt.Fprintf(b, "export interface %sStatic {\n", n)
		for _, m := range members {
			switch m.kind {
			case constructorFunc:
				fmt.Fprintf(b, "  new(%s): %s,\n", e.params(m.params), e.tsType(m.result))
			case staticFunc:
				fmt.Fprintf(b, "  %s(%s): %s,\n", host.ToCamel(m.name), e.params(m.params), e.tsType(m.result))
			}
		}
		b.WriteString("}\n")
		fmt.Fprintf(b, "export interface %sInstance {\n", n)
		for _, m := range members {
			if m.kind == methodFunc {
				fmt.Fprintf(b, "  %s(%s): %s,\n", host.ToCamel(m.name), e.params(m.params), e.tsType(m.result))
			}
		}
		b.WriteString("}\n")
	}
	for _, td := range named {
		e.typeDef(td)
	}
}

// importFile writes the module declaration of an imported interface.
func importFile(imp linker.Extern, owner map[*wit.TypeDef]string) string {
	e := newEmitter(imp.Name, "  ", owner)
	named, resources := sortedTypes(imp.Types)
	var body strings.Builder

	for _, td := range named {
		e.typeDef(td)
	}
	e.flush(&body)

	byResource := make(map[string][]member)
	for _, sig := range imp.Funcs {
		m := classify(sig)
		if m.kind == freeFunc {
			fmt.Fprintf(&body, "  export function %s(%s): %s;\n", host.ToCamel(m.name), e.params(m.params), e.tsType(m.result))
			continue
		}
		byResource[m.resource] = append(byResource[m.resource], m)
	}
	for _, res := range resources {
		fmt.Fprintf(&body, "  export class %s {\n", host.ToPascal(*res.Name))
		for _, m := range byResource[*res.Name] {
			switch m.kind {
			case constructorFunc:
				fmt.Fprintf(&body, "    constructor(%s)\n", e.params(m.params))
			case methodFunc:
				fmt.Fprintf(&body, "    %s(%s): %s;\n", host.ToCamel(m.name), e.params(m.params), e.tsType(m.result))
			case staticFunc:
				fmt.Fprintf(&body, "    static %s(%s): %s;\n", host.ToCamel(m.name), e.params(m.params), e.tsType(m.result))
			}
		}
		body.WriteString("  }\n")
	}
	e.flush(&body)
	e.helpers(&body)

	var out strings.Builder
	fmt.Fprintf(&out, "declare module \"%s\" {\n", imp.Name)
	e.importLines(&out)
	out.WriteString(body.String())
	out.WriteString("}\n")
	return out.String()
}

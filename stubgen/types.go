package stubgen

import (
	"fmt"
	"sort"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/host"
)

const (
	optionHelper = "export type Option<T> = { tag: 'none' } | { tag: 'some', val: T };"
	resultHelper = "export type Result<T, E> = { tag: 'ok', val: T } | { tag: 'err', val: E };"
)

// emitter renders the declarations of one output file. Named types are
// declared once per file, in the order they are first referenced; types
// owned by an imported interface are imported from its module instead.
type emitter struct {
	owner    map[*wit.TypeDef]string
	declared map[*wit.TypeDef]bool
	imported map[string]map[string]bool
	pending  []*wit.TypeDef
	module   string
	indent   string
	option   bool
	result   bool
}

func newEmitter(module, indent string, owner map[*wit.TypeDef]string) *emitter {
	return &emitter{
		owner:    owner,
		declared: make(map[*wit.TypeDef]bool),
		imported: make(map[string]map[string]bool),
		module:   module,
		indent:   indent,
	}
}

// external reports whether td belongs to another module, recording the
// import when it does.
func (e *emitter) external(td *wit.TypeDef, name string) bool {
	mod, ok := e.owner[td]
	if !ok || mod == e.module {
		return false
	}
	if e.imported[mod] == nil {
		e.imported[mod] = make(map[string]bool)
	}
	e.imported[mod][name] = true
	return true
}

func (e *emitter) resourceName(res *wit.TypeDef) string {
	name := "Resource"
	if res.Name != nil {
		name = host.ToPascal(*res.Name)
	}
	if e.external(res, name) {
		return name
	}
	if e.module == "" {
		return name + "Instance"
	}
	return name
}

func (e *emitter) tsType(t wit.Type) string {
	switch t := t.(type) {
	case nil:
		return "void"
	case wit.Bool:
		return "boolean"
	case wit.S8, wit.U8, wit.S16, wit.U16, wit.S32, wit.U32, wit.F32, wit.F64:
		return "number"
	case wit.S64, wit.U64:
		return "bigint"
	case wit.Char, wit.String:
		return "string"
	case *wit.TypeDef:
		return e.typeDef(t)
	}
	return "unknown"
}

func (e *emitter) typeDef(td *wit.TypeDef) string {
	switch k := td.Kind.(type) {
	case *wit.Own:
		return e.resourceName(k.Type)
	case *wit.Borrow:
		return e.resourceName(k.Type)
	case *wit.Resource:
		return e.resourceName(td)
	}
	if td.Name == nil {
		return e.anonymous(td.Kind)
	}
	name := host.ToPascal(*td.Name)
	if e.external(td, name) {
		return name
	}
	if !e.declared[td] {
		e.declared[td] = true
		e.pending = append(e.pending, td)
	}
	return name
}

func isOption(t wit.Type) bool {
	td, ok := t.(*wit.TypeDef)
	if !ok {
		return false
	}
	_, ok = td.Kind.(*wit.Option)
	return ok
}

func (e *emitter) anonymous(k wit.TypeDefKind) string {
	switch k := k.(type) {
	case *wit.List:
		if _, ok := k.Type.(wit.U8); ok {
			return "Uint8Array"
		}
		elem := e.tsType(k.Type)
		if strings.ContainsAny(elem, " |") {
			elem = "(" + elem + ")"
		}
		return elem + "[]"
	case *wit.Option:
		if isOption(k.Type) {
			e.option = true
			return "Option<" + e.tsType(k.Type) + ">"
		}
		return e.tsType(k.Type) + " | undefined"
	case *wit.Result:
		e.result = true
		return "Result<" + e.tsType(k.OK) + ", " + e.tsType(k.Err) + ">"
	case *wit.Tuple:
		parts := make([]string, len(k.Types))
		for i, t := range k.Types {
			parts[i] = e.tsType(t)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *wit.Record:
		parts := make([]string, len(k.Fields))
		for i, f := range k.Fields {
			parts[i] = e.field(f.Name, f.Type)
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case *wit.Flags:
		parts := make([]string, len(k.Flags))
		for i, f := range k.Flags {
			parts[i] = host.ToCamel(f.Name) + "?: boolean"
		}
		return "{ " + strings.Join(parts, ", ") + " }"
	case *wit.Variant:
		parts := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			parts[i] = e.tagged(c.Name, c.Type)
		}
		return strings.Join(parts, " | ")
	case *wit.Enum:
		parts := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			parts[i] = e.tagged(c.Name, nil)
		}
		return strings.Join(parts, " | ")
	case wit.Type:
		return e.tsType(k)
	}
	return "unknown"
}

func (e *emitter) tagged(name string, payload wit.Type) string {
	if payload == nil {
		return fmt.Sprintf("{ tag: '%s' }", name)
	}
	return fmt.Sprintf("{ tag: '%s', val: %s }", name, e.tsType(payload))
}

// field renders a record field; option-typed fields become optional.
func (e *emitter) field(name string, t wit.Type) string {
	if isOption(t) {
		inner := t.(*wit.TypeDef).Kind.(*wit.Option).Type
		return host.ToCamel(name) + "?: " + e.tsType(inner)
	}
	return host.ToCamel(name) + ": " + e.tsType(t)
}

// declare writes the declaration of a named type.
func (e *emitter) declare(b *strings.Builder, td *wit.TypeDef) {
	name := host.ToPascal(*td.Name)
	in := e.indent
	switch k := td.Kind.(type) {
	case *wit.Record:
		fmt.Fprintf(b, "%sexport interface %s {\n", in, name)
		for _, f := range k.Fields {
			fmt.Fprintf(b, "%s  %s,\n", in, e.field(f.Name, f.Type))
		}
		fmt.Fprintf(b, "%s}\n", in)
	case *wit.Flags:
		fmt.Fprintf(b, "%sexport interface %s {\n", in, name)
		for _, f := range k.Flags {
			fmt.Fprintf(b, "%s  %s?: boolean,\n", in, host.ToCamel(f.Name))
		}
		fmt.Fprintf(b, "%s}\n", in)
	case *wit.Variant:
		names := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			names[i] = name + host.ToPascal(c.Name)
		}
		fmt.Fprintf(b, "%sexport type %s = %s;\n", in, name, strings.Join(names, " | "))
		for i, c := range k.Cases {
			fmt.Fprintf(b, "%sexport interface %s {\n", in, names[i])
			fmt.Fprintf(b, "%s  tag: '%s',\n", in, c.Name)
			if c.Type != nil {
				fmt.Fprintf(b, "%s  val: %s,\n", in, e.tsType(c.Type))
			}
			fmt.Fprintf(b, "%s}\n", in)
		}
	case *wit.Enum:
		names := make([]string, len(k.Cases))
		for i, c := range k.Cases {
			names[i] = name + host.ToPascal(c.Name)
		}
		fmt.Fprintf(b, "%sexport type %s = %s;\n", in, name, strings.Join(names, " | "))
		for i, c := range k.Cases {
			fmt.Fprintf(b, "%sexport interface %s {\n%s  tag: '%s',\n%s}\n", in, names[i], in, c.Name, in)
		}
	default:
		fmt.Fprintf(b, "%sexport type %s = %s;\n", in, name, e.anonymous(td.Kind))
	}
}

// flush declares every pending named type, including the ones their
// declarations reference.
func (e *emitter) flush(b *strings.Builder) {
	for len(e.pending) > 0 {
		td := e.pending[0]
		e.pending = e.pending[1:]
		e.declare(b, td)
	}
}

// helpers writes the Option and Result helper types the file used.
func (e *emitter) helpers(b *strings.Builder) {
	if e.option {
		fmt.Fprintf(b, "%s%s\n", e.indent, optionHelper)
	}
	if e.result {
		fmt.Fprintf(b, "%s%s\n", e.indent, resultHelper)
	}
}

// importLines renders "import type" lines for types of other modules.
func (e *emitter) importLines(b *strings.Builder) {
	mods := make([]string, 0, len(e.imported))
	for m := range e.imported {
		mods = append(mods, m)
	}
	sort.Strings(mods)
	for _, m := range mods {
		names := make([]string, 0, len(e.imported[m]))
		for n := range e.imported[m] {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			fmt.Fprintf(b, "%simport type { %s } from \"%s\";\n", e.indent, n, m)
		}
	}
}

func (e *emitter) params(ps []param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = host.ToCamel(p.name) + ": " + e.tsType(p.typ)
	}
	return strings.Join(parts, ", ")
}

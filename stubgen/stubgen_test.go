package stubgen

import (
	"strings"
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/component-harness/component"
	"github.com/wippyai/component-harness/fixtures"
	"github.com/wippyai/component-harness/linker"
)

func named(name string, kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Name: &name, Kind: kind}
}

func anon(kind wit.TypeDefKind) *wit.TypeDef {
	return &wit.TypeDef{Kind: kind}
}

func demoWorld() *linker.World {
	const types = "test:demo/types@1.0.0"
	point := named("point", &wit.Record{Fields: []wit.Field{
		{Name: "x", Type: wit.U32{}},
		{Name: "y", Type: anon(&wit.Option{Type: wit.String{}})},
	}})
	blob := named("blob", &wit.Resource{})
	ownBlob := anon(&wit.Own{Type: blob})
	counter := named("counter", &wit.Resource{})

	return &linker.World{
		Imports: []linker.Extern{{
			Name:  types,
			Kind:  "instance",
			Types: map[string]wit.Type{"point": point, "blob": blob},
			Funcs: []linker.Signature{
				{Name: "[constructor]blob", Params: []linker.Param{{Name: "init", Type: anon(&wit.List{Type: wit.U8{}})}}, Result: ownBlob},
				{Name: "[method]blob.size", Params: []linker.Param{{Name: "self", Type: anon(&wit.Borrow{Type: blob})}}, Result: wit.U64{}},
				{Name: "[static]blob.merge", Params: []linker.Param{{Name: "a", Type: ownBlob}, {Name: "b", Type: ownBlob}}, Result: ownBlob},
				{Name: "origin", Result: point},
			},
		}},
		Exports: []linker.Extern{
			{
				Name:  "test:demo/api@1.0.0",
				Kind:  "instance",
				Types: map[string]wit.Type{"counter": counter},
				Funcs: []linker.Signature{
					{Name: "[constructor]counter", Params: []linker.Param{{Name: "start", Type: wit.S32{}}}, Result: anon(&wit.Own{Type: counter})},
					{Name: "[method]counter.incr", Params: []linker.Param{{Name: "self", Type: anon(&wit.Borrow{Type: counter})}}, Result: wit.S32{}},
					{Name: "translate", Params: []linker.Param{
						{Name: "p", Type: point},
						{Name: "by", Type: anon(&wit.Tuple{Types: []wit.Type{wit.S32{}, wit.S32{}}})},
					}, Result: anon(&wit.Result{OK: point, Err: wit.String{}})},
				},
			},
			{Name: "run", Kind: "func", Func: &linker.Signature{Name: "run"}},
		},
	}
}

func TestGenerate_World(t *testing.T) {
	files := Generate(demoWorld(), Options{})
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}
	if files[0].Name != "component.d.ts" {
		t.Errorf("world file = %q", files[0].Name)
	}

	want := `import type { Point } from "test:demo/types@1.0.0";
export interface Api {
  Counter: CounterStatic,
  translate(p: Point, by: [number, number]): Result<Point, string>,
}
export interface CounterStatic {
  new(start: number): CounterInstance,
}
export interface CounterInstance {
  incr(): number,
}
export type Result<T, E> = { tag: 'ok', val: T } | { tag: 'err', val: E };

export interface ComponentWorld {
  api: Api,
  run(): void,
}
`
	if files[0].Content != want {
		t.Errorf("world file:\n%s\nwant:\n%s", files[0].Content, want)
	}
}

func TestGenerate_Import(t *testing.T) {
	files := Generate(demoWorld(), Options{Name: "demo"})
	if files[0].Name != "demo.d.ts" {
		t.Errorf("world file = %q", files[0].Name)
	}
	if files[1].Name != "interfaces/test-demo-types.d.ts" {
		t.Errorf("import file = %q", files[1].Name)
	}

	want := `declare module "test:demo/types@1.0.0" {
  export interface Point {
    x: number,
    y?: string,
  }
  export function origin(): Point;
  export class Blob {
    constructor(init: Uint8Array)
    size(): bigint;
    static merge(a: Blob, b: Blob): Blob;
  }
}
`
	if files[1].Content != want {
		t.Errorf("import file:\n%s\nwant:\n%s", files[1].Content, want)
	}
}

func TestTypeMapping(t *testing.T) {
	e := newEmitter("m", "", nil)
	color := named("color", &wit.Enum{Cases: []wit.EnumCase{{Name: "red"}, {Name: "green"}}})

	tests := []struct {
		typ  wit.Type
		want string
	}{
		{nil, "void"},
		{wit.Bool{}, "boolean"},
		{wit.F64{}, "number"},
		{wit.S64{}, "bigint"},
		{wit.Char{}, "string"},
		{anon(&wit.List{Type: wit.String{}}), "string[]"},
		{anon(&wit.List{Type: anon(&wit.Option{Type: wit.U32{}})}), "(number | undefined)[]"},
		{anon(&wit.Option{Type: anon(&wit.Option{Type: wit.U32{}})}), "Option<number | undefined>"},
		{anon(&wit.Variant{Cases: []wit.Case{{Name: "a", Type: wit.U8{}}, {Name: "b"}}}), "{ tag: 'a', val: number } | { tag: 'b' }"},
		{anon(&wit.Flags{Flags: []wit.Flag{{Name: "read-only"}}}), "{ readOnly?: boolean }"},
		{color, "Color"},
	}
	for _, tt := range tests {
		if got := e.tsType(tt.typ); got != tt.want {
			t.Errorf("tsType = %q, want %q", got, tt.want)
		}
	}

	var b strings.Builder
	e.flush(&b)
	e.helpers(&b)
	want := `export type Color = ColorRed | ColorGreen;
export interface ColorRed {
  tag: 'red',
}
export interface ColorGreen {
  tag: 'green',
}
export type Option<T> = { tag: 'none' } | { tag: 'some', val: T };
`
	if b.String() != want {
		t.Errorf("declarations:\n%s\nwant:\n%s", b.String(), want)
	}
}

func TestDeclare_Once(t *testing.T) {
	e := newEmitter("m", "", nil)
	alias := named("bytes", &wit.List{Type: wit.U8{}})
	e.tsType(alias)
	e.tsType(alias)

	var b strings.Builder
	e.flush(&b)
	if got := b.String(); got != "export type Bytes = Uint8Array;\n" {
		t.Errorf("got %q", got)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"wasi:http/types@0.2.0": "wasi-http-types",
		"test:strings/imports":  "test-strings-imports",
		"plain":                 "plain",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFromComponent_DummyProxy(t *testing.T) {
	bin, err := fixtures.DummyProxy()
	if err != nil {
		t.Fatal(err)
	}
	c, err := component.Decode(bin)
	if err != nil {
		t.Fatal(err)
	}
	files, err := FromComponent(c, Options{Name: "dummy_proxy"})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2", len(files))
	}

	world := files[0].Content
	for _, s := range []string{
		`import type { IncomingRequest } from "wasi:http/types@0.2.0";`,
		`import type { ResponseOutparam } from "wasi:http/types@0.2.0";`,
		"export interface IncomingHandler {\n  handle(request: IncomingRequest, responseOut: ResponseOutparam): void,\n}",
		"export interface DummyProxyWorld {\n  incomingHandler: IncomingHandler,\n}",
	} {
		if !strings.Contains(world, s) {
			t.Errorf("world file missing %q:\n%s", s, world)
		}
	}

	types := files[1]
	if types.Name != "interfaces/wasi-http-types.d.ts" {
		t.Errorf("import file = %q", types.Name)
	}
	for _, s := range []string{
		`declare module "wasi:http/types@0.2.0" {`,
		"  export class Fields {\n    constructor()\n  }",
		"    setStatusCode(statusCode: number): Result<void, void>;",
		"    static set(param: ResponseOutparam, response: Result<OutgoingResponse, ErrorCode>): void;",
		"  export type ErrorCode = ErrorCodeInternalError;",
	} {
		if !strings.Contains(types.Content, s) {
			t.Errorf("import file missing %q:\n%s", s, types.Content)
		}
	}
}

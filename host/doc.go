// Package host describes the host side of a component's imports.
//
// An Imports table maps interface names to Interface values, which map
// function names to Go functions:
//
//	imps := host.Imports{
//		"test:strings/imports": {
//			"takeBasic":     func(s string) { ... },
//			"returnUnicode": func() string { return "🚀" },
//		},
//	}
//
// Function names may be written in WIT kebab-case or as lowerCamelCase or
// PascalCase aliases. Interface names resolve across compatible versions,
// so an implementation of "wasi:http/types@0.2.3" satisfies an import of
// "wasi:http/types@0.2.0".
//
// Adapt converts an arbitrary Go function into a Func over dynamic ABI
// values. A function may take a context.Context first and may return a
// trailing error; a non-nil error traps the calling guest.
package host

package component

import (
	"fmt"
	"strings"

	"github.com/wippyai/component-harness/wasm"
)

// Summary is a structural overview of a component.
type Summary struct {
	Imports       []Item
	Exports       []Item
	CustomNames   []string
	CoreImports   []Item // "module.name" of every import of a direct core module
	CoreModules   int
	CoreInstances int
	Components    int
	Instances     int
	Types         int
	Canons        int
}

// Item is a named import or export with its kind.
type Item struct {
	Name string
	Kind string
}

// Describe summarizes a decoded component.
func Describe(c *Component) Summary {
	var s Summary
	for _, sec := range c.Sections {
		switch sec := sec.(type) {
		case *CustomSection:
			s.CustomNames = append(s.CustomNames, sec.Name)
		case *CoreModuleSection:
			s.CoreModules++
			imps, err := wasm.ParseImports(sec.Module)
			if err != nil {
				continue
			}
			for _, imp := range imps {
				s.CoreImports = append(s.CoreImports, Item{Name: imp.Module + "." + imp.Name, Kind: coreKindName(imp.Kind)})
			}
		case *CoreInstanceSection:
			s.CoreInstances += len(sec.Instances)
		case *ComponentSection:
			s.Components++
		case *InstanceSection:
			s.Instances += len(sec.Instances)
		case *TypeSection:
			s.Types += len(sec.Types)
		case *CanonSection:
			s.Canons += len(sec.Canons)
		case *ImportSection:
			for _, imp := range sec.Imports {
				s.Imports = append(s.Imports, Item{Name: imp.Name, Kind: ExternSort(imp.Desc.Kind).String()})
			}
		case *ExportSection:
			for _, ex := range sec.Exports {
				s.Exports = append(s.Exports, Item{Name: ex.Name, Kind: ex.Sort.String()})
			}
		}
	}
	return s
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "core modules: %d, core instances: %d, components: %d, instances: %d, types: %d, canons: %d\n",
		s.CoreModules, s.CoreInstances, s.Components, s.Instances, s.Types, s.Canons)
	b.WriteString("imports:\n")
	for _, it := range s.Imports {
		fmt.Fprintf(&b, "  %-10s %s\n", it.Kind, it.Name)
	}
	b.WriteString("exports:\n")
	for _, it := range s.Exports {
		fmt.Fprintf(&b, "  %-10s %s\n", it.Kind, it.Name)
	}
	if len(s.CoreImports) > 0 {
		b.WriteString("core imports:\n")
		for _, it := range s.CoreImports {
			fmt.Fprintf(&b, "  %-10s %s\n", it.Kind, it.Name)
		}
	}
	return b.String()
}

func coreKindName(kind byte) string {
	switch kind {
	case wasm.KindFunc:
		return "func"
	case wasm.KindTable:
		return "table"
	case wasm.KindMemory:
		return "memory"
	case wasm.KindGlobal:
		return "global"
	}
	return fmt.Sprintf("kind(%d)", kind)
}

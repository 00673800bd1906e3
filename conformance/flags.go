package conformance

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/wippyai/component-harness/runtime"
)

const flagsPrefix = "// Flags:"

// Flags are the options a scenario declares in its header line, for
// example "// Flags: --instantiation sync".
type Flags struct {
	// Instantiation is empty when the header does not name a mode.
	Instantiation runtime.Instantiation
	// Extra holds flags the harness does not interpret, in order.
	Extra []string
}

// ParseFlags reads the first "// Flags:" line of src. A bare
// --instantiation selects async instantiation. Sources without a header
// yield zero Flags.
func ParseFlags(src string) (Flags, error) {
	var f Flags
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, flagsPrefix) {
			continue
		}
		args := strings.Fields(strings.TrimPrefix(line, flagsPrefix))
		for i := 0; i < len(args); i++ {
			name, value, hasValue := strings.Cut(args[i], "=")
			if name != "--instantiation" {
				f.Extra = append(f.Extra, args[i])
				continue
			}
			if !hasValue && i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
				i++
				value, hasValue = args[i], true
			}
			if !hasValue {
				f.Instantiation = runtime.Async
				continue
			}
			mode, err := runtime.ParseInstantiation(value)
			if err != nil {
				return Flags{}, fmt.Errorf("flags: %w", err)
			}
			f.Instantiation = mode
		}
		return f, nil
	}
	return f, sc.Err()
}

// MustParseFlags is ParseFlags for headers known at compile time.
func MustParseFlags(src string) Flags {
	f, err := ParseFlags(src)
	if err != nil {
		panic(err)
	}
	return f
}

// String renders f as a header line.
func (f Flags) String() string {
	args := make([]string, 0, 2+len(f.Extra))
	if f.Instantiation != "" {
		args = append(args, "--instantiation", string(f.Instantiation))
	}
	args = append(args, f.Extra...)
	if len(args) == 0 {
		return flagsPrefix
	}
	return flagsPrefix + " " + strings.Join(args, " ")
}

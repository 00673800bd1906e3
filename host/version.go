package host

import (
	"strconv"
	"strings"
)

// Version is the semantic version suffix of an interface name.
type Version struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// ParseVersion parses "0.2.0" or "0.2". Pre-release and build suffixes are
// ignored.
func ParseVersion(s string) (Version, bool) {
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if s == "" || len(parts) > 3 {
		return Version{}, false
	}
	var v Version
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, false
		}
		switch i {
		case 0:
			v.Major = uint32(n)
		case 1:
			v.Minor = uint32(n)
		case 2:
			v.Patch = uint32(n)
		}
	}
	return v, true
}

// Compatible reports whether an implementation at v can satisfy an import
// of want. Versions below 1.0 are compatible only within the same minor.
func (v Version) Compatible(want Version) bool {
	if v.Major != want.Major {
		return false
	}
	if v.Major == 0 && v.Minor != want.Minor {
		return false
	}
	if v.Minor != want.Minor {
		return v.Minor > want.Minor
	}
	return v.Patch >= want.Patch
}

func (v Version) less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

func (v Version) String() string {
	return strconv.FormatUint(uint64(v.Major), 10) + "." +
		strconv.FormatUint(uint64(v.Minor), 10) + "." +
		strconv.FormatUint(uint64(v.Patch), 10)
}

// SplitVersion splits "wasi:http/types@0.2.0" into its base name and version.
func SplitVersion(name string) (string, *Version) {
	i := strings.LastIndexByte(name, '@')
	if i < 0 {
		return name, nil
	}
	v, ok := ParseVersion(name[i+1:])
	if !ok {
		return name, nil
	}
	return name[:i], &v
}

package spec

import (
	"cmp"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Version is an API version in major.minor.patch form. It is advisory
// metadata attached to the generated code.
type Version struct {
	Major int
	Minor int
	Patch int
	set   bool
}

// ParseVersion accepts "major.minor" or "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, fmt.Errorf("invalid version format %q (want major.minor[.patch])", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		if !allDigits(p) {
			return Version{}, fmt.Errorf("invalid version component %q in %q", p, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n > math.MaxInt32 {
			return Version{}, fmt.Errorf("invalid version component %q in %q", p, s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2], set: true}, nil
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsSet reports whether the version was declared.
func (v Version) IsSet() bool { return v.set }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmp.Compare(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp.Compare(v.Minor, o.Minor)
	default:
		return cmp.Compare(v.Patch, o.Patch)
	}
}

package backend

import (
	"sort"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxNameLength    = 256
	maxVersionLength = 128

	// NameSeparator delimits namespace segments of an object name.
	NameSeparator = ":"
	// LatestVersion is accepted by lookups and resolves to the newest version.
	LatestVersion = "latest"
)

// ValidateName checks an object name. Underscore and "@" are reserved for
// the key layout and are never allowed.
func ValidateName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Value: name, Reason: "must not be empty"}
	}
	if len(name) > maxNameLength {
		return &ValidationError{Field: "name", Value: name, Reason: "must not be longer than " + strconv.Itoa(maxNameLength) + " bytes"}
	}
	if r, ok := firstInvalidRune(name, "_@/\\"); ok {
		return &ValidationError{Field: "name", Value: name, Reason: "must not contain " + strconv.QuoteRune(r)}
	}
	for _, segment := range strings.Split(name, NameSeparator) {
		switch segment {
		case "":
			return &ValidationError{Field: "name", Value: name, Reason: "must not contain empty segments"}
		case ".", "..":
			return &ValidationError{Field: "name", Value: name, Reason: "must not contain relative path segments"}
		}
	}
	return nil
}

// ValidateVersion checks an explicit version string.
func ValidateVersion(version string) error {
	switch version {
	case "":
		return &ValidationError{Field: "version", Value: version, Reason: "must not be empty"}
	case ".", "..":
		return &ValidationError{Field: "version", Value: version, Reason: "must not be a relative path"}
	}
	if len(version) > maxVersionLength {
		return &ValidationError{Field: "version", Value: version, Reason: "must not be longer than " + strconv.Itoa(maxVersionLength) + " bytes"}
	}
	if r, ok := firstInvalidRune(version, "@/\\"); ok {
		return &ValidationError{Field: "version", Value: version, Reason: "must not contain " + strconv.QuoteRune(r)}
	}
	return nil
}

func firstInvalidRune(s, reserved string) (rune, bool) {
	for _, r := range s {
		if strings.ContainsRune(reserved, r) || unicode.IsSpace(r) || unicode.IsControl(r) {
			return r, true
		}
	}
	return 0, false
}

// IsAutoVersion reports whether version looks auto-generated: a decimal
// integer without sign or leading zeros that fits into an uint64. Larger
// numbers count as explicit versions.
func IsAutoVersion(version string) bool {
	if version == "" || (len(version) > 1 && version[0] == '0') {
		return false
	}
	for _, r := range version {
		if r < '0' || r > '9' {
			return false
		}
	}
	_, err := strconv.ParseUint(version, 10, 64)
	return err == nil
}

// CompareVersions orders versions naturally: runs of digits compare by
// numeric value, everything else byte-wise. "2.10.0" sorts after "2.9.1".
func CompareVersions(a, b string) int {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, ra := digitRun(a)
			nb, rb := digitRun(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c
			}
			a, b = ra, rb
			continue
		}
		if ca != cb {
			if ca < cb {
				return -1
			}
			return 1
		}
		a, b = a[1:], b[1:]
	}
	switch {
	case a == "" && b == "":
		return 0
	case a == "":
		return -1
	default:
		return 1
	}
}

// SortVersions sorts versions in place by CompareVersions.
func SortVersions(versions []string) {
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func digitRun(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

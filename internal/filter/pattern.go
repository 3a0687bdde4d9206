// Package filter holds the name and date predicates applied to listings.
package filter

import (
	"github.com/grafana/regexp"

	"github.com/asad/blobmirror/internal/storage"
)

// Pattern is an optional compiled regular expression.
// The zero value is an absent pattern and matches every name.
type Pattern struct {
	re *regexp.Regexp
}

// Compile compiles expr. An empty expression yields the absent pattern.
func Compile(expr string) (Pattern, error) {
	if expr == "" {
		return Pattern{}, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, storage.NewError(storage.KindInvalidPattern, "compile pattern "+quote(expr), err)
	}
	return Pattern{re: re}, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and constants.
func MustCompile(expr string) Pattern {
	p, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// IsSet reports whether a pattern was given.
func (p Pattern) IsSet() bool {
	return p.re != nil
}

// Match reports whether name contains a match of the pattern. Matching is unanchored.
func (p Pattern) Match(name string) bool {
	if p.re == nil {
		return true
	}
	return p.re.MatchString(name)
}

func (p Pattern) String() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()
}

func quote(s string) string {
	return "\"" + s + "\""
}

package resolver

import (
	"path/filepath"
	"strings"
)

// Alias rewrites specifiers starting with Prefix to the Target directory.
//
// A prefix matches a specifier that equals it or continues with a path
// separator, so "@" matches "@/store" but not "@babel/core". A trailing "$"
// restricts the alias to exact matches ("vue$").
type Alias struct {
	Prefix string
	Target string
}

func (a Alias) exact() bool {
	return strings.HasSuffix(a.Prefix, "$")
}

func (a Alias) key() string {
	return strings.TrimSuffix(a.Prefix, "$")
}

// matches reports whether the alias applies and returns the remainder of
// the specifier after the prefix.
func (a Alias) matches(specifier string) (string, bool) {
	key := a.key()
	if specifier == key {
		return "", true
	}
	if a.exact() {
		return "", false
	}
	if strings.HasSuffix(key, "/") {
		if strings.HasPrefix(specifier, key) {
			return specifier[len(key):], true
		}
		return "", false
	}
	if strings.HasPrefix(specifier, key+"/") {
		return specifier[len(key)+1:], true
	}
	return "", false
}

// MatchAlias picks the alias with the longest matching prefix. Identical
// prefix lengths keep the earliest declared alias.
func MatchAlias(aliases []Alias, specifier string) (Alias, string, bool) {
	var (
		best      Alias
		remainder string
		found     bool
	)

	for _, a := range aliases {
		rest, ok := a.matches(specifier)
		if !ok {
			continue
		}
		if !found || len(a.key()) > len(best.key()) {
			best, remainder, found = a, rest, true
		}
	}

	return best, remainder, found
}

// rewrite applies the alias, keeping the remainder of the specifier.
func (a Alias) rewrite(remainder string) string {
	if remainder == "" {
		return a.Target
	}
	return filepath.Join(a.Target, filepath.FromSlash(remainder))
}

package transform

import (
	"bytes"
	"regexp"
)

var (
	jsImportFrom   = regexp.MustCompile(`\bimport\s*(?:[\w$*{}\s,]+?\s*\bfrom\s*)?["']([^"'\s][^"'\n]*)["']`)
	jsExportFrom   = regexp.MustCompile(`\bexport\s+(?:\*(?:\s+as\s+[\w$]+)?|\{[^}]*\})\s*from\s*["']([^"'\s][^"'\n]*)["']`)
	jsRequire      = regexp.MustCompile(`\brequire\(\s*["']([^"'\s][^"'\n]*)["']\s*\)`)
	cssImport      = regexp.MustCompile(`@import\s+(?:url\(\s*)?["']?([^"')\s;]+)["']?\s*\)?[^;]*;`)
	cssImportStrip = regexp.MustCompile(`(?m)^[ \t]*@import\s+[^;]+;[ \t]*\r?\n?`)
)

// Scan returns the static import specifiers of code for the content type, in
// source order without duplicates. Assets have no imports.
func Scan(typ string, code []byte) []string {
	switch typ {
	case TypeJS:
		return ScanJS(code)
	case TypeCSS:
		return ScanCSS(code)
	default:
		return nil
	}
}

// ScanJS finds ES module imports, re-exports and CommonJS requires. Dynamic
// import() calls are not static dependencies and are ignored, as is anything
// inside comments or string literals other than the specifiers themselves.
func ScanJS(code []byte) []string {
	clean := blankStrings(blankComments(code, true))

	type hit struct {
		at   int
		spec string
	}
	var hits []hit

	for _, re := range []*regexp.Regexp{jsImportFrom, jsExportFrom, jsRequire} {
		for _, m := range re.FindAllSubmatchIndex(clean, -1) {
			hits = append(hits, hit{at: m[0], spec: string(clean[m[2]:m[3]])})
		}
	}

	// order by position so results follow the source
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].at < hits[j-1].at; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	var out []string
	for _, h := range hits {
		out = appendUnique(out, h.spec)
	}
	return out
}

// ScanCSS finds @import specifiers. Remote URLs are left to the browser.
func ScanCSS(code []byte) []string {
	var out []string
	for _, m := range cssImport.FindAllSubmatch(blankComments(code, false), -1) {
		spec := string(m[1])
		if isRemote(spec) {
			continue
		}
		out = appendUnique(out, spec)
	}
	return out
}

// stripCSSImports removes local @import rules, which become module edges.
func stripCSSImports(code []byte) []byte {
	return cssImportStrip.ReplaceAllFunc(code, func(rule []byte) []byte {
		m := cssImport.FindSubmatch(rule)
		if m != nil && isRemote(string(m[1])) {
			return rule
		}
		return nil
	})
}

func isRemote(spec string) bool {
	for _, p := range []string{"http://", "https://", "//", "data:"} {
		if len(spec) >= len(p) && spec[:len(p)] == p {
			return true
		}
	}
	return false
}

// blankStrings replaces the contents of string and template literals with
// spaces, except strings in specifier position (after from, import or
// require). Quotes and offsets are preserved. code must already have its
// comments blanked.
func blankStrings(code []byte) []byte {
	out := code
	var quote byte
	keep := false

	for i := 0; i < len(out); i++ {
		c := out[i]
		if quote == 0 {
			if c == '\'' || c == '"' || c == '`' {
				quote = c
				keep = c != '`' && specifierPosition(out[:i])
			}
			continue
		}

		switch {
		case c == '\\':
			if !keep {
				out[i] = ' '
				if i+1 < len(out) && out[i+1] != '\n' {
					out[i+1] = ' '
				}
			}
			i++
		case c == quote:
			quote = 0
		case c == '\n' && quote != '`':
			quote = 0
		case !keep && c != '\n':
			out[i] = ' '
		}
	}

	return out
}

// specifierPosition reports whether a string literal starting right after
// prefix can be an import specifier.
func specifierPosition(prefix []byte) bool {
	prefix = bytes.TrimRight(prefix, " \t\r\n")
	if bytes.HasSuffix(prefix, []byte("(")) {
		return endsWithWord(bytes.TrimRight(prefix[:len(prefix)-1], " \t\r\n"), "require")
	}
	return endsWithWord(prefix, "from") || endsWithWord(prefix, "import")
}

func endsWithWord(b []byte, word string) bool {
	if !bytes.HasSuffix(b, []byte(word)) {
		return false
	}
	if len(b) == len(word) {
		return true
	}
	prev := b[len(b)-len(word)-1]
	return !(prev == '_' || prev == '$' || prev == '.' ||
		(prev >= 'a' && prev <= 'z') || (prev >= 'A' && prev <= 'Z') || (prev >= '0' && prev <= '9'))
}

// blankComments replaces comment bytes with spaces, leaving string and
// template literals intact so offsets are preserved. CSS has no line
// comments, and "//" appears in unquoted url() values.
func blankComments(code []byte, lineComments bool) []byte {
	out := make([]byte, len(code))
	copy(out, code)

	const (
		normal = iota
		single
		double
		template
		line
		block
	)

	state := normal
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch state {
		case normal:
			switch {
			case c == '\'':
				state = single
			case c == '"':
				state = double
			case c == '`':
				state = template
			case lineComments && c == '/' && i+1 < len(out) && out[i+1] == '/':
				state = line
				out[i] = ' '
			case c == '/' && i+1 < len(out) && out[i+1] == '*':
				state = block
				out[i] = ' '
			}
		case single, double, template:
			switch {
			case c == '\\':
				i++
			case (state == single && c == '\'') || (state == double && c == '"') || (state == template && c == '`'):
				state = normal
			case c == '\n' && state != template:
				state = normal
			}
		case line:
			if c == '\n' {
				state = normal
				continue
			}
			out[i] = ' '
		case block:
			if c == '*' && i+1 < len(out) && out[i+1] == '/' {
				out[i], out[i+1] = ' ', ' '
				i++
				state = normal
				continue
			}
			if c != '\n' {
				out[i] = ' '
			}
		}
	}

	return out
}

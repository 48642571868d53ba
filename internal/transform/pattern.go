package transform

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dlclark/regexp2"
)

// Pattern is a JavaScript style regular expression matched against module
// ids. Both literal form ("/\.s[ac]ss$/i") and bare form ("node_modules")
// are accepted.
type Pattern struct {
	source string
	re     *regexp2.Regexp
}

// CompilePattern parses expr, honouring the i, m and s flags of the literal
// form. Other JavaScript flags (g, u, y) have no meaning for a match test and
// are ignored.
func CompilePattern(expr string) (*Pattern, error) {
	body := expr
	opts := regexp2.RegexOptions(regexp2.ECMAScript)

	if len(expr) > 1 && strings.HasPrefix(expr, "/") {
		end := strings.LastIndex(expr, "/")
		if end > 0 {
			body = expr[1:end]
			for _, flag := range expr[end+1:] {
				switch flag {
				case 'i':
					opts |= regexp2.IgnoreCase
				case 'm':
					opts |= regexp2.Multiline
				case 's':
					// ECMAScript mode cannot be combined with Singleline
					opts = (opts &^ regexp2.ECMAScript) | regexp2.Singleline
				}
			}
		}
	}

	re, err := regexp2.Compile(body, opts)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidPattern, expr, err)
	}

	return &Pattern{source: expr, re: re}, nil
}

// MustCompilePattern is CompilePattern for patterns known at compile time.
func MustCompilePattern(expr string) *Pattern {
	p, err := CompilePattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Match tests the slash-separated form of id.
func (p *Pattern) Match(id string) bool {
	if p == nil {
		return false
	}
	ok, err := p.re.MatchString(filepath.ToSlash(id))
	return err == nil && ok
}

func (p *Pattern) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

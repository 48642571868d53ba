package resolver

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

func newFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func newResolver(t *testing.T, fs afero.Fs, opts Options) *Resolver {
	t.Helper()

	r, err := New(fs, opts)
	require.NoError(t, err)
	return r
}

func TestResolveProbeOrder(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/app/src/a.js":             "",
		"/app/src/b.ts":             "",
		"/app/src/b.js":             "",
		"/app/src/lib/index.tsx":    "",
		"/app/src/exact.js":         "",
		"/app/src/exact.js.js":      "",
		"/app/src/dironly/index.js": "",
	})

	r := newResolver(t, fs, Options{Extensions: []string{".js", ".ts", ".tsx"}})

	tests := []struct {
		name      string
		specifier string
		expected  string
	}{
		{name: "literal path wins", specifier: "./exact.js", expected: "/app/src/exact.js"},
		{name: "extension probe", specifier: "./a", expected: "/app/src/a.js"},
		{name: "extensions in declared order", specifier: "./b", expected: "/app/src/b.js"},
		{name: "index file", specifier: "./lib", expected: "/app/src/lib/index.tsx"},
		{name: "directory is not a file", specifier: "./dironly", expected: "/app/src/dironly/index.js"},
		{name: "parent relative", specifier: "../src/a", expected: "/app/src/a.js"},
		{name: "absolute", specifier: "/app/src/a", expected: "/app/src/a.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(tt.specifier, "/app/src")
			require.NoError(t, err)
			require.Equal(t, tt.expected, id)
		})
	}
}

func TestResolveExtensionOrderMatters(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/app/b.ts": "",
		"/app/b.js": "",
	})

	r := newResolver(t, fs, Options{Extensions: []string{".ts", ".js"}})
	id, err := r.Resolve("./b", "/app")
	require.NoError(t, err)
	require.Equal(t, "/app/b.ts", id)
}

func TestResolveAliasLongestPrefix(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/app/src/components/Button.tsx":         "",
		"/app/src/utils/format.ts":               "",
		"/app/special/components/Button.tsx":     "",
		"/app/src/index.tsx":                     "",
		"/app/node_modules/@babel/core/index.js": "",
	})

	r := newResolver(t, fs, Options{
		Extensions: []string{".ts", ".tsx", ".js"},
		Modules:    []string{"node_modules"},
		Aliases: []Alias{
			{Prefix: "@", Target: "/app/src"},
			{Prefix: "@/components", Target: "/app/special/components"},
			{Prefix: "@utils", Target: "/app/src/utils"},
		},
	})

	tests := []struct {
		name      string
		specifier string
		expected  string
	}{
		{name: "longest prefix chosen", specifier: "@/components/Button", expected: "/app/special/components/Button.tsx"},
		{name: "short prefix", specifier: "@/index", expected: "/app/src/index.tsx"},
		{name: "bare alias", specifier: "@", expected: "/app/src/index.tsx"},
		{name: "named alias", specifier: "@utils/format", expected: "/app/src/utils/format.ts"},
		{name: "scoped package is not an alias", specifier: "@babel/core", expected: "/app/node_modules/@babel/core/index.js"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := r.Resolve(tt.specifier, "/app/src/pages")
			require.NoError(t, err)
			require.Equal(t, tt.expected, id)
		})
	}
}

func TestMatchAliasTieKeepsEarliest(t *testing.T) {
	aliases := []Alias{
		{Prefix: "@lib", Target: "/first"},
		{Prefix: "@lib", Target: "/second"},
		{Prefix: "@", Target: "/root"},
	}

	alias, rest, ok := MatchAlias(aliases, "@lib/x/y")
	require.True(t, ok)
	require.Equal(t, "/first", alias.Target)
	require.Equal(t, "x/y", rest)
}

func TestMatchAliasExact(t *testing.T) {
	aliases := []Alias{{Prefix: "vue$", Target: "/vendor/vue.esm.js"}}

	_, _, ok := MatchAlias(aliases, "vue")
	require.True(t, ok)

	_, _, ok = MatchAlias(aliases, "vue/compiler")
	require.False(t, ok)
}

func TestResolvePackageMainField(t *testing.T) {
	fs := newFS(t, map[string]string{
		"/app/node_modules/lib/package.json":    `{"module": "dist/lib.esm.js", "main": "dist/lib.cjs.js"}`,
		"/app/node_modules/lib/dist/lib.esm.js": "",
		"/app/node_modules/lib/dist/lib.cjs.js": "",
		"/app/node_modules/lib/fp.js":           "",
	})

	r := newResolver(t, fs, DefaultOptions())

	id, err := r.Resolve("lib", "/app/src/deep")
	require.NoError(t, err)
	require.Equal(t, "/app/node_modules/lib/dist/lib.esm.js", id)

	id, err = r.Resolve("lib/fp", "/app/src")
	require.NoError(t, err)
	require.Equal(t, "/app/node_modules/lib/fp.js", id)
}

func TestResolveNotFound(t *testing.T) {
	fs := newFS(t, map[string]string{"/app/a.js": ""})
	r := newResolver(t, fs, Options{Extensions: []string{".js", ".ts"}})

	_, err := r.Resolve("./missing", "/app")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrNotFound)

	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "./missing", resErr.Specifier)
	require.Equal(t, []string{
		filepath.FromSlash("/app/missing"),
		filepath.FromSlash("/app/missing.js"),
		filepath.FromSlash("/app/missing.ts"),
		filepath.FromSlash("/app/missing/index.js"),
		filepath.FromSlash("/app/missing/index.ts"),
	}, resErr.Candidates)
}

func TestResolveDeterministic(t *testing.T) {
	fs := newFS(t, map[string]string{"/app/src/a.ts": ""})
	r := newResolver(t, fs, Options{Extensions: []string{".js", ".ts"}})

	first, err := r.Resolve("./a", "/app/src")
	require.NoError(t, err)

	// a file appearing later must not change a memoised answer
	require.NoError(t, afero.WriteFile(fs, "/app/src/a.js", nil, 0o644))

	second, err := r.Resolve("./a", "/app/src")
	require.NoError(t, err)
	require.Equal(t, first, second)
}

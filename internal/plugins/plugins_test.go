package plugins

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bundler/internal/chunk"
	"github.com/wolfeidau/bundler/internal/contenthash"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/graph"
	"github.com/wolfeidau/bundler/internal/resolver"
	"github.com/wolfeidau/bundler/internal/transform"
)

type fixture struct {
	files   map[string]string
	entries []graph.Entry
	rules   []transform.Rule
}

func build(t *testing.T, fx fixture, plugins ...emit.Plugin) (afero.Fs, *emit.Manifest, error) {
	t.Helper()

	src := afero.NewMemMapFs()
	for name, content := range fx.files {
		require.NoError(t, afero.WriteFile(src, name, []byte(content), 0o644))
	}

	opts := resolver.DefaultOptions()
	opts.Extensions = append(opts.Extensions, ".css")
	res, err := resolver.New(src, opts)
	require.NoError(t, err)

	reg := transform.NewRegistry(transform.RightToLeft, fx.rules...)
	g, err := graph.NewBuilder(src, res, reg, graph.Options{Context: "/app"}).Build(context.Background(), fx.entries)
	require.NoError(t, err)

	chunks, err := chunk.NewSplitter(chunk.DefaultOptions()).Split(context.Background(), g)
	require.NoError(t, err)

	out := afero.NewMemMapFs()
	manifest, err := emit.New(out, g, emit.Options{Plugins: plugins, Source: src, Context: "/app"}).Emit(context.Background(), chunks)
	return out, manifest, err
}

func read(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()

	data, err := afero.ReadFile(fs, "/"+name)
	require.NoError(t, err)
	return string(data)
}

var sharedFixture = fixture{
	files: map[string]string{
		"/app/src/main.js":   `import "./shared"; console.log("main");`,
		"/app/src/admin.js":  `import "./shared"; console.log("admin");`,
		"/app/src/shared.js": `export const shared = 1;`,
		"/app/public/index.html": `<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<!-- app shell -->
<!-- chunk:main -->
</body>
</html>
`,
	},
	entries: []graph.Entry{{Name: "main", Path: "./src/main.js"}, {Name: "admin", Path: "./src/admin.js"}},
}

func TestHTMLPlaceholderInjection(t *testing.T) {
	html, err := New("html", map[string]any{"template": "public/index.html", "title": "Bundled", "removeComments": true})
	require.NoError(t, err)

	out, manifest, err := build(t, sharedFixture, html)
	require.NoError(t, err)

	shared := manifest.Chunks["shared"].File
	main := manifest.Chunks["main"].File

	page := read(t, out, "index.html")
	require.Contains(t, page, "<title>Bundled</title>")
	require.Contains(t, page, `<script defer src="/`+shared+`"></script>`+"\n"+`<script defer src="/`+main+`"></script>`)
	require.NotContains(t, page, manifest.Chunks["admin"].File)
	require.NotContains(t, page, "app shell")
	require.Equal(t, []string{"index.html"}, manifest.Assets)
}

func TestHTMLAutoInject(t *testing.T) {
	html, err := New("html", map[string]any{"scriptLoading": "module", "publicPath": "/static/"})
	require.NoError(t, err)

	out, manifest, err := build(t, sharedFixture, html)
	require.NoError(t, err)

	page := read(t, out, "index.html")
	admin := strings.Index(page, manifest.Chunks["admin"].File)
	shared := strings.Index(page, manifest.Chunks["shared"].File)
	main := strings.Index(page, manifest.Chunks["main"].File)
	body := strings.Index(page, "</body>")

	require.Positive(t, admin)
	require.Less(t, shared, admin, "shared chunk loads before its entries")
	require.Less(t, admin, main)
	require.Less(t, main, body)
	require.Equal(t, 1, strings.Count(page, manifest.Chunks["shared"].File))
	require.Contains(t, page, `<script type="module" src="/static/`)
}

func TestHTMLTemplateRendersScripts(t *testing.T) {
	fx := fixture{
		files: map[string]string{
			"/app/index.js": `console.log(1);`,
			"/app/page.html": `<body>{{range .Scripts}}<script src="{{.}}"></script>{{end}}` +
				`<pre>{{marshal .Manifest.Entries | safe}}</pre><!-- kept --></body>`,
		},
		entries: []graph.Entry{{Name: "main", Path: "./index.js"}},
	}

	html, err := New("html", map[string]any{"template": "page.html", "filename": "app/page.html"})
	require.NoError(t, err)

	out, manifest, err := build(t, fx, html)
	require.NoError(t, err)

	page := read(t, out, "app/page.html")
	require.Equal(t, 1, strings.Count(page, manifest.Chunks["main"].File), "template scripts are not injected twice")
	require.Contains(t, page, "<pre>[\"main\"]\n</pre><!-- kept -->")
}

func TestHTMLUnknownPlaceholder(t *testing.T) {
	fx := fixture{
		files: map[string]string{
			"/app/index.js":   ``,
			"/app/index.html": `<!-- chunk:nope -->`,
		},
		entries: []graph.Entry{{Name: "main", Path: "./index.js"}},
	}

	html, err := New("html", map[string]any{"template": "index.html"})
	require.NoError(t, err)

	out, _, err := build(t, fx, html)
	require.Error(t, err)

	entries, err := afero.ReadDir(out, "/")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestCopy(t *testing.T) {
	fx := fixture{
		files: map[string]string{
			"/app/index.js":                ``,
			"/app/public/favicon.ico":      "ICO",
			"/app/public/img/a.png":        "A",
			"/app/public/img/sub/b.png":    "B",
			"/app/public/img/sub/skip.txt": "skip",
		},
		entries: []graph.Entry{{Name: "main", Path: "./index.js"}},
	}

	cp, err := New("copy", map[string]any{"patterns": []any{
		map[string]any{"from": "public/favicon.ico"},
		map[string]any{"from": "public/img/**/*.png", "to": "static"},
		map[string]any{"from": "public/robots.txt", "noErrorOnMissing": true},
	}})
	require.NoError(t, err)

	out, manifest, err := build(t, fx, cp)
	require.NoError(t, err)

	require.Equal(t, []string{"favicon.ico", "static/a.png", "static/sub/b.png"}, manifest.Assets)
	require.Equal(t, "ICO", read(t, out, "favicon.ico"))
	require.Equal(t, "B", read(t, out, "static/sub/b.png"))
}

func TestCopyMissing(t *testing.T) {
	fx := fixture{files: map[string]string{"/app/index.js": ``}, entries: []graph.Entry{{Name: "main", Path: "./index.js"}}}

	cp, err := NewCopy(CopyOptions{Patterns: []CopyPattern{{From: "public/favicon.ico"}}})
	require.NoError(t, err)

	_, _, err = build(t, fx, cp)
	require.ErrorContains(t, err, "unable to locate")
}

func TestCopyInvalidOptions(t *testing.T) {
	_, err := NewCopy(CopyOptions{})
	require.Error(t, err)

	_, err = NewCopy(CopyOptions{Patterns: []CopyPattern{{From: "public/[", To: ""}}})
	require.Error(t, err)

	_, err = NewCopy(CopyOptions{Patterns: []CopyPattern{{From: "a", To: "../escape"}}})
	require.Error(t, err)
}

func styleFixture() fixture {
	css, _ := transform.NewLoader("css", nil)
	style, _ := transform.NewLoader("style", nil)

	return fixture{
		files: map[string]string{
			"/app/index.js": `import "./app.css"; console.log("app");`,
			"/app/app.css":  `.app { color: red; }`,
		},
		entries: []graph.Entry{{Name: "main", Path: "./index.js"}},
		rules: []transform.Rule{{
			Test: transform.MustCompilePattern(`/\.css$/`),
			Use:  []transform.Step{{Name: "style", Transformer: style}, {Name: "css", Transformer: css}},
		}},
	}
}

func TestExtractCSS(t *testing.T) {
	extract, err := New("extract-css", nil)
	require.NoError(t, err)
	html, err := New("html", nil)
	require.NoError(t, err)

	out, manifest, err := build(t, styleFixture(), extract, html)
	require.NoError(t, err)

	require.Len(t, manifest.Assets, 2)
	cssFile := manifest.Assets[0]
	require.True(t, strings.HasPrefix(cssFile, "bundle."))
	require.True(t, strings.HasSuffix(cssFile, ".css"))
	require.Contains(t, read(t, out, cssFile), "color: red")

	main := manifest.Chunks["main"]
	js := read(t, out, main.File)
	require.NotContains(t, js, "bundler:style")
	require.Contains(t, js, `console.log("app")`)

	hash := contenthash.Default().Sum([]byte(js))
	require.Equal(t, hash, main.Hash)
	require.Equal(t, "main."+hash+".js", main.File)
	require.Equal(t, len(js), main.Size)

	unstripped, plain, err := build(t, styleFixture())
	require.NoError(t, err)
	stale := plain.Chunks["main"].File
	require.NotEqual(t, stale, main.File)
	require.Contains(t, read(t, unstripped, stale), "bundler:style")

	exists, err := afero.Exists(out, "/"+stale)
	require.NoError(t, err)
	require.False(t, exists)

	page := read(t, out, "index.html")
	require.Contains(t, page, `<link rel="stylesheet" href="/`+cssFile+`">`)
	require.Contains(t, page, `src="/`+main.File+`"`)
	require.NotContains(t, page, stale)
}

func TestExtractCSSPerChunk(t *testing.T) {
	extract, err := NewExtractCSS(ExtractCSSOptions{Filename: "css/[name].[hash:8].css"})
	require.NoError(t, err)

	_, manifest, err := build(t, styleFixture(), extract)
	require.NoError(t, err)
	require.Len(t, manifest.Assets, 1)
	require.True(t, strings.HasPrefix(manifest.Assets[0], "css/main."))
}

func TestCompress(t *testing.T) {
	fx := fixture{
		files:   map[string]string{"/app/index.js": "console.log(\"" + strings.Repeat("bundle ", 400) + "\");"},
		entries: []graph.Entry{{Name: "main", Path: "./index.js"}},
	}

	compress, err := New("compress", map[string]any{"threshold": 100})
	require.NoError(t, err)

	out, manifest, err := build(t, fx, compress)
	require.NoError(t, err)

	file := manifest.Chunks["main"].File
	original := read(t, out, file)
	require.Equal(t, []string{file + ".gz", file + ".zst"}, manifest.Assets)

	gz, err := gzip.NewReader(bytes.NewReader([]byte(read(t, out, file+".gz"))))
	require.NoError(t, err)
	unzipped, err := io.ReadAll(gz)
	require.NoError(t, err)
	require.Equal(t, original, string(unzipped))

	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	unzstd, err := dec.DecodeAll([]byte(read(t, out, file+".zst")), nil)
	require.NoError(t, err)
	require.Equal(t, original, string(unzstd))
}

func TestCompressSkipsSmallFiles(t *testing.T) {
	fx := fixture{files: map[string]string{"/app/index.js": "1;"}, entries: []graph.Entry{{Name: "main", Path: "./index.js"}}}

	compress, err := NewCompress(CompressOptions{Algorithms: []string{AlgorithmGzip}})
	require.NoError(t, err)

	_, manifest, err := build(t, fx, compress)
	require.NoError(t, err)
	require.Empty(t, manifest.Assets)
}

func TestNewUnknownPlugin(t *testing.T) {
	_, err := New("pwa", nil)
	require.ErrorIs(t, err, ErrUnknownPlugin)
	require.ErrorContains(t, err, "available: compress, copy, extract-css, html")

	_, err = New("compress", map[string]any{"algorithms": []any{"brotli"}})
	require.Error(t, err)

	require.Equal(t, []string{"compress", "copy", "extract-css", "html"}, Names())
}

func TestRegisterCustomPlugin(t *testing.T) {
	Register("banner", func(options map[string]any) (emit.Plugin, error) {
		return bannerPlugin{text: fmt.Sprint(options["text"])}, nil
	})
	t.Cleanup(func() {
		mu.Lock()
		delete(plugins, "banner")
		mu.Unlock()
	})
	require.Contains(t, Names(), "banner")

	p, err := New("banner", map[string]any{"text": "built"})
	require.NoError(t, err)

	out, manifest, err := build(t, fixture{
		files:   map[string]string{"/app/index.js": `console.log("app");`},
		entries: []graph.Entry{{Name: "main", Path: "./index.js"}},
	}, p)
	require.NoError(t, err)
	require.Equal(t, []string{"BANNER"}, manifest.Assets)
	require.Equal(t, "built", read(t, out, "BANNER"))
}

type bannerPlugin struct{ text string }

func (bannerPlugin) Name() string { return "banner" }

func (p bannerPlugin) Apply(ctx context.Context, pc *emit.PluginContext) error {
	return pc.Emit("BANNER", []byte(p.text))
}

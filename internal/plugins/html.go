package plugins

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/wolfeidau/bundler/internal/emit"
	"github.com/wolfeidau/bundler/internal/transform"
)

const defaultHTMLTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
</body>
</html>
`

var (
	chunkPlaceholder = regexp2.MustCompile(`<!--\s*chunk:([\w.@-]+)\s*-->`, regexp2.None)
	htmlComment      = regexp2.MustCompile(`<!--[\s\S]*?-->`, regexp2.None)
)

// HTMLOptions configures the html plugin.
type HTMLOptions struct {
	// Template is a file relative to the project context. Empty uses a
	// minimal document.
	Template string `mapstructure:"template"`
	Filename string `mapstructure:"filename"`
	Title    string `mapstructure:"title"`
	// Chunks limits the entries whose scripts are injected. Empty means all.
	Chunks []string `mapstructure:"chunks"`
	// Inject appends tags before </head> and </body> when the template
	// neither uses placeholders nor renders the scripts itself.
	Inject         *bool  `mapstructure:"inject"`
	PublicPath     string `mapstructure:"publicPath"`
	ScriptLoading  string `mapstructure:"scriptLoading"`
	RemoveComments bool   `mapstructure:"removeComments"`
}

// HTMLPlugin renders an html page referencing the emitted chunks.
type HTMLPlugin struct {
	opts HTMLOptions
}

func init() {
	Register("html", newHTMLPlugin)
}

func newHTMLPlugin(options map[string]any) (emit.Plugin, error) {
	var opts HTMLOptions
	if err := transform.DecodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewHTML(opts)
}

// NewHTML creates the html plugin.
func NewHTML(opts HTMLOptions) (*HTMLPlugin, error) {
	opts.Filename = cmp.Or(opts.Filename, "index.html")
	opts.PublicPath = cmp.Or(opts.PublicPath, "/")
	opts.ScriptLoading = cmp.Or(opts.ScriptLoading, "defer")
	if opts.Inject == nil {
		inject := true
		opts.Inject = &inject
	}

	switch opts.ScriptLoading {
	case "defer", "module", "blocking":
	default:
		return nil, fmt.Errorf("unknown scriptLoading %q", opts.ScriptLoading)
	}

	return &HTMLPlugin{opts: opts}, nil
}

func (p *HTMLPlugin) Name() string { return "html" }

func (p *HTMLPlugin) Apply(ctx context.Context, pc *emit.PluginContext) error {
	manifest := pc.Manifest()

	entries := p.opts.Chunks
	if len(entries) == 0 {
		entries = manifest.Entries()
	}

	var scripts []string
	for _, name := range entries {
		files, err := manifest.Scripts(name)
		if err != nil {
			return err
		}
		for _, f := range files {
			if u := p.url(f); !slices.Contains(scripts, u) {
				scripts = append(scripts, u)
			}
		}
	}

	styles := p.styles(pc)

	text, err := p.source(pc)
	if err != nil {
		return err
	}

	replaced := false
	funcs := template.FuncMap{
		"marshal": marshal,
		"safe": func(s string) template.HTML {
			return template.HTML(s) //nolint:gosec
		},
		"chunk": func(name string) (template.HTML, error) {
			files, err := manifest.Scripts(name)
			if err != nil {
				return "", err
			}
			replaced = true

			urls := make([]string, len(files))
			for i, f := range files {
				urls[i] = p.url(f)
			}
			return template.HTML(p.scriptTags(urls)), nil //nolint:gosec
		},
	}

	// html/template drops comments while parsing, so placeholders become
	// actions and kept comments are re-emitted verbatim
	text, err = chunkPlaceholder.Replace(text, `{{chunk "$1"}}`, -1, -1)
	if err != nil {
		return fmt.Errorf("failed to prepare template: %w", err)
	}
	if !p.opts.RemoveComments {
		var comments []string
		text, err = htmlComment.ReplaceFunc(text, func(m regexp2.Match) string {
			comments = append(comments, m.String())
			return fmt.Sprintf("{{comment %d}}", len(comments)-1)
		}, -1, -1)
		if err != nil {
			return fmt.Errorf("failed to prepare template: %w", err)
		}
		funcs["comment"] = func(i int) template.HTML {
			return template.HTML(comments[i]) //nolint:gosec
		}
	}

	tmpl, err := template.New(p.opts.Filename).Funcs(funcs).Parse(text)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", p.opts.Template, err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, map[string]any{
		"Title":    p.opts.Title,
		"Scripts":  scripts,
		"Styles":   styles,
		"Manifest": manifest,
	})
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", p.opts.Filename, err)
	}
	page := buf.String()

	if *p.opts.Inject && !replaced && (len(scripts) == 0 || !strings.Contains(page, scripts[len(scripts)-1])) {
		page = injectBefore(page, "</head>", p.styleTags(styles))
		page = injectBefore(page, "</body>", p.scriptTags(scripts))
	}

	if p.opts.RemoveComments {
		page, err = htmlComment.Replace(page, "", -1, -1)
		if err != nil {
			return fmt.Errorf("failed to remove comments: %w", err)
		}
	}

	zerolog.Ctx(ctx).Debug().
		Str("file", p.opts.Filename).
		Strs("scripts", scripts).
		Strs("styles", styles).
		Msg("html page rendered")

	return pc.Emit(p.opts.Filename, []byte(page))
}

// source reads the template text, relative templates from the project context.
func (p *HTMLPlugin) source(pc *emit.PluginContext) (string, error) {
	if p.opts.Template == "" {
		return defaultHTMLTemplate, nil
	}

	name := p.opts.Template
	if !filepath.IsAbs(name) {
		name = filepath.Join(pc.Context(), name)
	}
	data, err := afero.ReadFile(pc.Source(), name)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}

// styles lists css chunks followed by css files earlier plugins emitted.
func (p *HTMLPlugin) styles(pc *emit.PluginContext) []string {
	var styles []string
	manifest := pc.Manifest()
	for _, name := range manifest.Names() {
		if c := manifest.Chunks[name]; c.Type == transform.TypeCSS {
			styles = append(styles, p.url(c.File))
		}
	}
	for _, f := range pc.Emitted() {
		if path.Ext(f) == ".css" {
			styles = append(styles, p.url(f))
		}
	}
	return styles
}

func (p *HTMLPlugin) url(file string) string {
	return strings.TrimSuffix(p.opts.PublicPath, "/") + "/" + file
}

func (p *HTMLPlugin) scriptTags(urls []string) string {
	var sb strings.Builder
	for i, u := range urls {
		if i > 0 {
			sb.WriteString("\n")
		}
		switch p.opts.ScriptLoading {
		case "module":
			fmt.Fprintf(&sb, `<script type="module" src="%s"></script>`, template.HTMLEscapeString(u))
		case "blocking":
			fmt.Fprintf(&sb, `<script src="%s"></script>`, template.HTMLEscapeString(u))
		default:
			fmt.Fprintf(&sb, `<script defer src="%s"></script>`, template.HTMLEscapeString(u))
		}
	}
	return sb.String()
}

func (p *HTMLPlugin) styleTags(urls []string) string {
	var sb strings.Builder
	for i, u := range urls {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, `<link rel="stylesheet" href="%s">`, template.HTMLEscapeString(u))
	}
	return sb.String()
}

// injectBefore inserts tags before the last occurrence of closing, or
// appends them when the document has no such tag.
func injectBefore(page, closing, tags string) string {
	if tags == "" {
		return page
	}
	i := strings.LastIndex(strings.ToLower(page), closing)
	if i < 0 {
		return page + tags + "\n"
	}
	return page[:i] + tags + "\n" + page[i:]
}

func marshal(value any) string {
	buf := new(bytes.Buffer)

	if err := json.NewEncoder(buf).Encode(value); err != nil {
		panic(errors.New("context can only be json serializable"))
	}

	return buf.String()
}

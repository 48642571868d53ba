package graph

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/bundler/internal/resolver"
	"github.com/wolfeidau/bundler/internal/transform"
)

func project(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()

	fs := afero.NewMemMapFs()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func newBuilder(t *testing.T, fs afero.Fs, reg *transform.Registry, opts Options) *Builder {
	t.Helper()

	res, err := resolver.New(fs, resolver.DefaultOptions())
	require.NoError(t, err)

	if reg == nil {
		reg = transform.NewRegistry(transform.RightToLeft)
	}
	if opts.Context == "" {
		opts.Context = "/app"
	}
	return NewBuilder(fs, res, reg, opts)
}

func moduleIDs(g *Graph) []string {
	var ids []string
	for _, m := range g.Modules() {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestBuildLinearChain(t *testing.T) {
	fs := project(t, map[string]string{
		"/app/src/index.js": `import a from "./a";` + "\nconsole.log(a);\n",
		"/app/src/a.js":     `import b from "./b";` + "\nexport default b + 1;\n",
		"/app/src/b.js":     "export default 1;\n",
	})

	g, err := newBuilder(t, fs, nil, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./src/index.js"}})
	require.NoError(t, err)
	require.True(t, g.Frozen())

	require.Equal(t, []string{"/app/src/index.js", "/app/src/a.js", "/app/src/b.js"}, moduleIDs(g))
	require.Equal(t, []EntryPoint{{Name: "main", ID: "/app/src/index.js"}}, g.Entries())

	for i, m := range g.Modules() {
		require.Equal(t, i, m.Order)
		require.True(t, m.Transformed)
		require.Equal(t, []string{"main"}, m.Entries)
	}

	index, ok := g.Module("/app/src/index.js")
	require.True(t, ok)
	require.Equal(t, []Edge{{Specifier: "./a", From: "/app/src/index.js", To: "/app/src/a.js"}}, index.Imports)
	require.Equal(t, []string{"/app/src/a.js"}, g.Dependents("/app/src/b.js"))
}

func TestBuildCycleTerminates(t *testing.T) {
	fs := project(t, map[string]string{
		"/app/a.js": `import "./b";`,
		"/app/b.js": `import "./a";`,
	})

	g, err := newBuilder(t, fs, nil, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./a.js"}})
	require.NoError(t, err)
	require.Equal(t, []string{"/app/a.js", "/app/b.js"}, moduleIDs(g))

	a, _ := g.Module("/app/a.js")
	b, _ := g.Module("/app/b.js")
	require.Equal(t, "/app/b.js", a.Imports[0].To)
	require.Equal(t, "/app/a.js", b.Imports[0].To)
	require.Equal(t, []string{"main"}, b.Entries)
}

func TestBuildSharedModulesOwnership(t *testing.T) {
	fs := project(t, map[string]string{
		"/app/src/main.js":      `import "./util"; import "./main-only";`,
		"/app/src/admin.js":     `import "./util.js";`,
		"/app/src/util.js":      "export const x = 1;",
		"/app/src/main-only.js": "export const y = 2;",
	})

	entries := []Entry{{Name: "main", Path: "./src/main.js"}, {Name: "admin", Path: "./src/admin.js"}}
	g, err := newBuilder(t, fs, nil, Options{}).Build(context.Background(), entries)
	require.NoError(t, err)

	// entries are seeded in name order
	require.Equal(t, []string{"/app/src/admin.js", "/app/src/main.js", "/app/src/util.js", "/app/src/main-only.js"}, moduleIDs(g))

	util, _ := g.Module("/app/src/util.js")
	require.Equal(t, []string{"admin", "main"}, util.Entries)

	only, _ := g.Module("/app/src/main-only.js")
	require.Equal(t, []string{"main"}, only.Entries)
}

func TestBuildDiscoveryOrderIndependentOfConcurrency(t *testing.T) {
	files := map[string]string{
		"/app/index.js":  `import "./a"; import "./b"; import "./c"; import "./d";`,
		"/app/a.js":      `import "./e"; import "./shared";`,
		"/app/b.js":      `import "./shared"; import "./f";`,
		"/app/c.js":      `import "./g";`,
		"/app/d.js":      `import "./e";`,
		"/app/e.js":      ``,
		"/app/f.js":      ``,
		"/app/g.js":      `import "./index";`,
		"/app/shared.js": ``,
	}

	var orders [][]string
	for _, workers := range []int{1, 2, 8} {
		g, err := newBuilder(t, project(t, files), nil, Options{Concurrency: workers}).
			Build(context.Background(), []Entry{{Name: "main", Path: "./index.js"}})
		require.NoError(t, err)
		orders = append(orders, moduleIDs(g))
	}

	require.Equal(t, []string{
		"/app/index.js", "/app/a.js", "/app/b.js", "/app/c.js", "/app/d.js",
		"/app/e.js", "/app/shared.js", "/app/f.js", "/app/g.js",
	}, orders[0])
	require.Equal(t, orders[0], orders[1])
	require.Equal(t, orders[0], orders[2])
}

func TestBuildNestedResolutionFailure(t *testing.T) {
	fs := project(t, map[string]string{
		"/app/src/index.js": `import "./a";`,
		"/app/src/a.js":     `import "./b";`,
		"/app/src/b.js":     `import "./missing";`,
	})

	g, err := newBuilder(t, fs, nil, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./src/index.js"}})
	require.Nil(t, g)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Equal(t, "main", buildErr.Entry)
	require.Equal(t, []string{"/app/src/index.js", "/app/src/a.js", "/app/src/b.js", "./missing"}, buildErr.Chain)

	var resErr *resolver.ResolutionError
	require.ErrorAs(t, err, &resErr)
	require.Equal(t, "./missing", resErr.Specifier)
	require.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestBuildFailureChainIgnoresCancelledSiblings(t *testing.T) {
	tests := []struct {
		name string
		slow transform.TransformerFunc
	}{
		{
			name: "sibling finishes after cancellation",
			slow: func(ctx context.Context, src transform.Source) (transform.Result, error) {
				time.Sleep(100 * time.Millisecond)
				return transform.Result{Code: src.Code}, nil
			},
		},
		{
			name: "sibling returns the context error",
			slow: func(ctx context.Context, src transform.Source) (transform.Result, error) {
				<-ctx.Done()
				return transform.Result{}, ctx.Err()
			},
		},
		{
			name: "sibling returns the context cause",
			slow: func(ctx context.Context, src transform.Source) (transform.Result, error) {
				<-ctx.Done()
				return transform.Result{}, context.Cause(ctx)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := project(t, map[string]string{
				"/app/index.js": `import "./slow"; import "./bad";`,
				"/app/slow.js":  `export const slow = 1;`,
				"/app/bad.js":   `import "./missing";`,
			})

			reg := transform.NewRegistry(transform.RightToLeft, transform.Rule{
				Test: transform.MustCompilePattern(`slow\.js$`),
				Use:  []transform.Step{{Name: "slow", Transformer: tt.slow}},
			})

			_, err := newBuilder(t, fs, reg, Options{Concurrency: 4}).
				Build(context.Background(), []Entry{{Name: "main", Path: "./index.js"}})

			var buildErr *BuildError
			require.ErrorAs(t, err, &buildErr)
			require.Equal(t, []string{"/app/index.js", "/app/bad.js", "./missing"}, buildErr.Chain)
			require.ErrorIs(t, err, resolver.ErrNotFound)
			require.NotErrorIs(t, err, context.Canceled)
		})
	}
}

func TestBuildTransformsEachModuleOnce(t *testing.T) {
	files := map[string]string{
		"/app/main.js":   `import "./a"; import "./b";`,
		"/app/admin.js":  `import "./shared"; import "./b";`,
		"/app/a.js":      `import "./shared";`,
		"/app/b.js":      `import "./shared"; import "./a";`,
		"/app/shared.js": `import "./main";`,
	}

	for _, workers := range []int{1, 8} {
		calls := make(map[string]*atomic.Int32, len(files))
		for id := range files {
			calls[id] = &atomic.Int32{}
		}

		reg := transform.NewRegistry(transform.RightToLeft, transform.Rule{
			Use: []transform.Step{{Name: "count", Transformer: transform.TransformerFunc(func(ctx context.Context, src transform.Source) (transform.Result, error) {
				calls[src.ID].Add(1)
				return transform.Result{Code: src.Code}, nil
			})}},
		})

		entries := []Entry{{Name: "main", Path: "./main.js"}, {Name: "admin", Path: "./admin.js"}}
		g, err := newBuilder(t, project(t, files), reg, Options{Concurrency: workers}).Build(context.Background(), entries)
		require.NoError(t, err)
		require.Equal(t, len(files), g.Len())

		for id, n := range calls {
			require.Equal(t, int32(1), n.Load(), "workers=%d module=%s", workers, id)
		}
	}
}

func TestBuildMissingEntry(t *testing.T) {
	fs := project(t, map[string]string{})

	_, err := newBuilder(t, fs, nil, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./src/index.js"}})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Equal(t, []string{"./src/index.js"}, buildErr.Chain)
	require.ErrorIs(t, err, resolver.ErrNotFound)
}

func TestBuildTransformFailure(t *testing.T) {
	fs := project(t, map[string]string{
		"/app/index.js":  `import "./broken.ts";`,
		"/app/broken.ts": `const = ;`,
	})

	boom := errors.New("unexpected token")
	reg := transform.NewRegistry(transform.RightToLeft, transform.Rule{
		Test: transform.MustCompilePattern(`\.ts$`),
		Use: []transform.Step{{Name: "ts", Transformer: transform.TransformerFunc(func(ctx context.Context, src transform.Source) (transform.Result, error) {
			return transform.Result{}, boom
		})}},
	})

	_, err := newBuilder(t, fs, reg, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./index.js"}})

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Equal(t, []string{"/app/index.js", "/app/broken.ts"}, buildErr.Chain)

	var transformErr *transform.TransformError
	require.ErrorAs(t, err, &transformErr)
	require.Equal(t, "ts", transformErr.Step)
	require.ErrorIs(t, err, boom)
}

func TestBuildExcludedModulePassesRaw(t *testing.T) {
	raw := "$brand: red;\n.vendor { color: $brand; }\n"
	fs := project(t, map[string]string{
		"/app/index.js":                   `import "./node_modules/ui/theme.scss";`,
		"/app/node_modules/ui/theme.scss": raw,
	})

	reg := transform.NewRegistry(transform.RightToLeft, transform.Rule{
		Test:    transform.MustCompilePattern(`/\.scss$/`),
		Exclude: transform.MustCompilePattern("node_modules"),
		Use: []transform.Step{{Name: "sass", Transformer: transform.TransformerFunc(func(ctx context.Context, src transform.Source) (transform.Result, error) {
			return transform.Result{}, errors.New("must not run")
		})}},
	})

	g, err := newBuilder(t, fs, reg, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./index.js"}})
	require.NoError(t, err)

	m, ok := g.Module("/app/node_modules/ui/theme.scss")
	require.True(t, ok)
	require.Equal(t, raw, string(m.Code))
	require.Equal(t, m.Raw, m.Code)
}

func TestBuildTimeout(t *testing.T) {
	fs := project(t, map[string]string{"/app/slow.js": ""})

	reg := transform.NewRegistry(transform.RightToLeft, transform.Rule{
		Use: []transform.Step{{Name: "slow", Transformer: transform.TransformerFunc(func(ctx context.Context, src transform.Source) (transform.Result, error) {
			<-ctx.Done()
			return transform.Result{}, ctx.Err()
		})}},
	})

	_, err := newBuilder(t, fs, reg, Options{Timeout: 20 * time.Millisecond}).
		Build(context.Background(), []Entry{{Name: "main", Path: "./slow.js"}})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestBuildCancelled(t *testing.T) {
	fs := project(t, map[string]string{"/app/index.js": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBuilder(t, fs, nil, Options{}).Build(ctx, []Entry{{Name: "main", Path: "./index.js"}})
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildCollectsAssets(t *testing.T) {
	fs := project(t, map[string]string{
		"/app/index.js": `import logo from "./logo.png";`,
		"/app/logo.png": "PNG",
	})

	fileLoader, err := transform.NewLoader("file", nil)
	require.NoError(t, err)

	reg := transform.NewRegistry(transform.RightToLeft, transform.Rule{
		Test: transform.MustCompilePattern(`/\.png$/`),
		Use:  []transform.Step{{Name: "file", Transformer: fileLoader}},
	})

	g, err := newBuilder(t, fs, reg, Options{}).Build(context.Background(), []Entry{{Name: "main", Path: "./index.js"}})
	require.NoError(t, err)

	logo, _ := g.Module("/app/logo.png")
	require.Len(t, logo.Assets, 1)
	require.Equal(t, []byte("PNG"), logo.Assets[0].Data)
	require.Equal(t, transform.TypeJS, logo.Type)
}

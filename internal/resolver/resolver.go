// Package resolver maps import specifiers to absolute module ids.
//
// Resolution rewrites aliases, joins relative specifiers against the
// importing directory and probes the filesystem: the literal path, then each
// configured extension, then an index file per extension. Bare package
// specifiers are looked up in module directories walking up from the importer.
package resolver

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const defaultCacheSize = 4096

// Options configures a Resolver.
type Options struct {
	// Aliases in declaration order.
	Aliases []Alias
	// Extensions probed in order, each with its leading dot.
	Extensions []string
	// Modules lists directory names searched for bare specifiers.
	Modules []string
	// MainFields are package.json fields naming a package's entry file.
	MainFields []string
	// CacheSize bounds the memoised results. Zero uses the default.
	CacheSize int
}

// DefaultOptions returns the conventional front-end defaults.
func DefaultOptions() Options {
	return Options{
		Extensions: []string{".js", ".jsx", ".ts", ".tsx", ".json"},
		Modules:    []string{"node_modules"},
		MainFields: []string{"module", "main"},
	}
}

type cacheKey struct {
	specifier string
	fromDir   string
}

type cacheEntry struct {
	id  string
	err error
}

// Resolver is safe for concurrent use. Results are memoised, so it should
// live no longer than the filesystem snapshot it reads, normally one build.
type Resolver struct {
	fs    afero.Fs
	opts  Options
	cache *lru.Cache[cacheKey, cacheEntry]
}

// New creates a resolver over fs.
func New(fs afero.Fs, opts Options) (*Resolver, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}

	cache, err := lru.New[cacheKey, cacheEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create resolve cache: %w", err)
	}

	return &Resolver{fs: fs, opts: opts, cache: cache}, nil
}

// Resolve returns the absolute id of the file specifier refers to when
// imported from fromDir, or a *ResolutionError listing the probed candidates.
func (r *Resolver) Resolve(specifier, fromDir string) (string, error) {
	key := cacheKey{specifier: specifier, fromDir: fromDir}
	if hit, ok := r.cache.Get(key); ok {
		return hit.id, hit.err
	}

	id, err := r.resolve(specifier, fromDir)
	r.cache.Add(key, cacheEntry{id: id, err: err})

	return id, err
}

func (r *Resolver) resolve(specifier, fromDir string) (string, error) {
	var candidates []string

	request := specifier
	aliased := false
	if alias, rest, ok := MatchAlias(r.opts.Aliases, specifier); ok {
		request = alias.rewrite(rest)
		aliased = true
		log.Debug().
			Str("specifier", specifier).
			Str("alias", alias.Prefix).
			Str("rewritten", request).
			Msg("alias applied")
	}

	switch {
	case filepath.IsAbs(request):
		if id, ok := r.probe(filepath.Clean(request), &candidates); ok {
			return id, nil
		}
	case aliased || isRelative(request):
		if id, ok := r.probe(filepath.Join(fromDir, request), &candidates); ok {
			return id, nil
		}
	default:
		if id, ok := r.resolvePackage(request, fromDir, &candidates); ok {
			return id, nil
		}
	}

	return "", &ResolutionError{
		Specifier:  specifier,
		FromDir:    fromDir,
		Candidates: candidates,
	}
}

// probe tries base, base+ext and base/index+ext in that order.
func (r *Resolver) probe(base string, candidates *[]string) (string, bool) {
	if r.try(base, candidates) {
		return base, true
	}

	for _, ext := range r.opts.Extensions {
		if p := base + ext; r.try(p, candidates) {
			return p, true
		}
	}

	for _, ext := range r.opts.Extensions {
		if p := filepath.Join(base, "index"+ext); r.try(p, candidates) {
			return p, true
		}
	}

	return "", false
}

func (r *Resolver) try(path string, candidates *[]string) bool {
	*candidates = append(*candidates, path)

	info, err := r.fs.Stat(path)
	if err != nil {
		return false
	}

	return info.Mode().IsRegular()
}

// resolvePackage walks from fromDir to the root looking for the package in
// each configured module directory.
func (r *Resolver) resolvePackage(request, fromDir string, candidates *[]string) (string, bool) {
	dir := filepath.Clean(fromDir)
	for {
		for _, modules := range r.opts.Modules {
			if filepath.Base(dir) == modules {
				continue
			}

			base := filepath.Join(dir, modules, filepath.FromSlash(request))
			if id, ok := r.probeMain(base, candidates); ok {
				return id, true
			}
			if id, ok := r.probe(base, candidates); ok {
				return id, true
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// probeMain honours the package.json entry fields of a package directory.
func (r *Resolver) probeMain(pkgDir string, candidates *[]string) (string, bool) {
	data, err := afero.ReadFile(r.fs, filepath.Join(pkgDir, "package.json"))
	if err != nil {
		return "", false
	}

	var manifest map[string]any
	if err := json.Unmarshal(data, &manifest); err != nil {
		log.Warn().Err(err).Str("package", pkgDir).Msg("Ignoring unreadable package.json")
		return "", false
	}

	for _, field := range r.opts.MainFields {
		main, ok := manifest[field].(string)
		if !ok || main == "" {
			continue
		}
		if id, ok := r.probe(filepath.Join(pkgDir, filepath.FromSlash(main)), candidates); ok {
			return id, true
		}
	}

	return "", false
}

func isRelative(specifier string) bool {
	return specifier == "." || specifier == ".." ||
		strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../")
}

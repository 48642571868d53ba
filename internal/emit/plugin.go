package emit

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Plugin post-processes the staged output once every chunk file exists.
type Plugin interface {
	Name() string
	Apply(ctx context.Context, pc *PluginContext) error
}

// PluginContext is shared by the plugins of one build. Output is the staged
// output directory; nothing reaches the real output until every plugin
// succeeded.
type PluginContext struct {
	manifest *Manifest
	stage    afero.Fs
	source   afero.Fs
	context  string

	// namer names a chunk from its content, claimed maps staged file names
	// to their owner
	namer   func(name, typ string, content []byte) (file, hash string)
	claimed map[string]string

	mu      sync.Mutex
	emitted []string
}

// NewPluginContext builds a context over a staging filesystem. The emitter
// creates one per build; it is exported for plugin tests.
func NewPluginContext(manifest *Manifest, stage, source afero.Fs, projectDir string) *PluginContext {
	return &PluginContext{
		manifest: manifest,
		stage:    stage,
		source:   source,
		context:  projectDir,
		namer:    New(nil, nil, Options{}).chunkFile,
		claimed:  make(map[string]string),
	}
}

// Manifest returns the chunk manifest.
func (pc *PluginContext) Manifest() *Manifest {
	return pc.manifest
}

// Output is the staged output directory, rooted at "/".
func (pc *PluginContext) Output() afero.Fs {
	return pc.stage
}

// Source is the project filesystem.
func (pc *PluginContext) Source() afero.Fs {
	return pc.source
}

// Context is the project directory within Source.
func (pc *PluginContext) Context() string {
	return pc.context
}

// ReadFile reads a staged output file by its manifest name.
func (pc *PluginContext) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(pc.stage, "/"+name)
}

// Emit stages a new output file and records it for later plugins and the
// manifest. Emitting the same name twice replaces the content.
func (pc *PluginContext) Emit(name string, data []byte) error {
	clean := path.Clean("/" + name)
	if clean == "/" || strings.Contains(name, "..") {
		return fmt.Errorf("invalid output name %q", name)
	}

	for _, chunk := range pc.manifest.Chunks {
		if "/"+chunk.File == clean {
			return fmt.Errorf("%w: %s is a chunk file", ErrFileCollision, name)
		}
	}

	if err := pc.stage.MkdirAll(path.Dir(clean), 0o755); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}
	if err := afero.WriteFile(pc.stage, clean, data, 0o644); err != nil {
		return fmt.Errorf("failed to stage %s: %w", name, err)
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	rel := strings.TrimPrefix(clean, "/")
	if !slices.Contains(pc.emitted, rel) {
		pc.emitted = append(pc.emitted, rel)
	}
	return nil
}

// Emitted returns the files plugins have emitted so far.
func (pc *PluginContext) Emitted() []string {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	return slices.Clone(pc.emitted)
}

// ReplaceChunk restages a chunk with new content. The file is renamed after
// the new content hash and the manifest entry, and every import of the old
// file, follows it. The new file name is returned.
func (pc *PluginContext) ReplaceChunk(name string, data []byte) (string, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	entry, ok := pc.manifest.Chunks[name]
	if !ok {
		return "", fmt.Errorf("unknown chunk %s", name)
	}

	owner := "chunk " + name
	file, hash := pc.namer(name, entry.Type, data)
	if file != entry.File {
		if prev, ok := pc.claimed[file]; ok && prev != owner {
			return "", fmt.Errorf("%w: %s is produced by both %s and %s", ErrFileCollision, file, prev, owner)
		}
		for other, c := range pc.manifest.Chunks {
			if other != name && c.File == file {
				return "", fmt.Errorf("%w: %s is a chunk file", ErrFileCollision, file)
			}
		}
		if slices.Contains(pc.emitted, file) {
			return "", fmt.Errorf("%w: %s was emitted by a plugin", ErrFileCollision, file)
		}
		if err := pc.stage.Remove("/" + entry.File); err != nil {
			return "", fmt.Errorf("failed to unstage %s: %w", entry.File, err)
		}
	}

	if err := writeStage(pc.stage, file, data); err != nil {
		return "", err
	}

	delete(pc.claimed, entry.File)
	pc.claimed[file] = owner

	for other, c := range pc.manifest.Chunks {
		if !slices.Contains(c.Imports, entry.File) {
			continue
		}
		imports := slices.Clone(c.Imports)
		for i, imp := range imports {
			if imp == entry.File {
				imports[i] = file
			}
		}
		c.Imports = imports
		pc.manifest.Chunks[other] = c
	}

	entry.File, entry.Hash, entry.Size = file, hash, len(data)
	pc.manifest.Chunks[name] = entry

	return file, nil
}

package emit

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// ManifestEntry describes one emitted chunk. Imports are the file names of
// the shared chunks an entry chunk needs loaded first.
type ManifestEntry struct {
	File    string   `json:"file"`
	Hash    string   `json:"hash"`
	IsEntry bool     `json:"isEntry"`
	Type    string   `json:"type"`
	Imports []string `json:"imports,omitempty"`
	Modules []string `json:"modules"`
	Size    int      `json:"size"`
}

// Manifest maps chunk names to their emitted files. It is complete before
// any plugin runs; plugins change it only through PluginContext.ReplaceChunk.
type Manifest struct {
	Chunks map[string]ManifestEntry `json:"chunks"`
	// Assets lists loader and plugin emitted files in emission order.
	Assets []string `json:"assets,omitempty"`
	order  []string
}

func newManifest() *Manifest {
	return &Manifest{Chunks: make(map[string]ManifestEntry)}
}

func (m *Manifest) add(name string, entry ManifestEntry) {
	m.Chunks[name] = entry
	m.order = append(m.order, name)
}

// ParseManifest reads a serialised manifest. Chunk order is restored as entry
// chunks by name followed by shared chunks by name.
func ParseManifest(data []byte) (*Manifest, error) {
	m := newManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	for name := range m.Chunks {
		m.order = append(m.order, name)
	}
	slices.SortFunc(m.order, func(a, b string) int {
		ea, eb := m.Chunks[a].IsEntry, m.Chunks[b].IsEntry
		if ea != eb {
			if ea {
				return -1
			}
			return 1
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})

	return m, nil
}

// Names returns the chunk names in emission order.
func (m *Manifest) Names() []string {
	return slices.Clone(m.order)
}

// Entries returns the names of the entry chunks in emission order.
func (m *Manifest) Entries() []string {
	var names []string
	for _, name := range m.order {
		if m.Chunks[name].IsEntry {
			names = append(names, name)
		}
	}
	return names
}

// Chunk looks up a chunk by name.
func (m *Manifest) Chunk(name string) (ManifestEntry, bool) {
	e, ok := m.Chunks[name]
	return e, ok
}

// Files returns every chunk file followed by every asset.
func (m *Manifest) Files() []string {
	files := make([]string, 0, len(m.order)+len(m.Assets))
	for _, name := range m.order {
		files = append(files, m.Chunks[name].File)
	}
	return append(files, m.Assets...)
}

// Scripts returns the files to load for the named entry chunk in load order:
// its shared dependencies depth first, then the entry file itself.
func (m *Manifest) Scripts(name string) ([]string, error) {
	entry, ok := m.Chunks[name]
	if !ok {
		return nil, fmt.Errorf("chunk %q not found in manifest", name)
	}
	if !entry.IsEntry {
		return nil, errors.New("scripts can only be loaded for entry chunks")
	}

	byFile := make(map[string]ManifestEntry, len(m.Chunks))
	for _, e := range m.Chunks {
		byFile[e.File] = e
	}

	scripts := []string{}
	visited := map[string]bool{entry.File: true}
	m.addDependencies(entry, byFile, &scripts, visited)

	return append(scripts, entry.File), nil
}

func (m *Manifest) addDependencies(entry ManifestEntry, byFile map[string]ManifestEntry, scripts *[]string, visited map[string]bool) {
	for _, file := range entry.Imports {
		if visited[file] {
			continue
		}
		visited[file] = true

		if dep, ok := byFile[file]; ok {
			m.addDependencies(dep, byFile, scripts, visited)
		}
		*scripts = append(*scripts, file)
	}
}

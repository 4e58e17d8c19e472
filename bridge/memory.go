package bridge

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Memory keeps the whole tree in a map. Tests use it in place of a real
// checkout.
type Memory struct {
	mu    sync.Mutex
	files map[string]string
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string]string)}
}

func (b *Memory) Get(path string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	contents, ok := b.files[path]
	if !ok {
		return "", errors.Errorf("bridge: no such file %s", path)
	}
	return contents, nil
}

func (b *Memory) Put(path string, contents string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files[path] = contents
	return nil
}

func (b *Memory) Delete(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.files, path)
	return nil
}

func (b *Memory) Glob(rootPath string, extension string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	root := strings.TrimSuffix(rootPath, "/")
	var out []string
	for p := range b.files {
		if root != "" && !strings.HasPrefix(p, root+"/") {
			continue
		}
		if !strings.HasSuffix(p, "."+extension) {
			continue
		}
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (b *Memory) PutConfig(path string, contents string) error {
	return b.Put(path, contents)
}

func (b *Memory) SupportsBuilding() bool {
	return true
}

// Has reports whether a path exists; test helper.
func (b *Memory) Has(path string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.files[path]
	return ok
}

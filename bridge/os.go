package bridge

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// OS serves documents from a directory tree rooted at rootDir. Writes go
// through an atomic rename so readers never observe a torn file.
type OS struct {
	rootDir string
	build   bool
}

func NewOS(rootDir string) *OS {
	return &OS{rootDir: rootDir, build: true}
}

// NewReadonlyOS returns a bridge whose PutConfig is a no-op; used when the
// generated config files are owned by another process.
func NewReadonlyOS(rootDir string) *OS {
	return &OS{rootDir: rootDir}
}

func (b *OS) abs(path string) string {
	return filepath.Join(b.rootDir, filepath.FromSlash(path))
}

func (b *OS) Get(path string) (string, error) {
	data, err := os.ReadFile(b.abs(path))
	if err != nil {
		return "", errors.Wrapf(err, "bridge: read %s", path)
	}
	return string(data), nil
}

func (b *OS) Put(path string, contents string) error {
	full := b.abs(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return errors.Wrapf(err, "bridge: mkdir for %s", path)
	}
	if err := atomic.WriteFile(full, bytes.NewReader([]byte(contents))); err != nil {
		return errors.Wrapf(err, "bridge: write %s", path)
	}
	return nil
}

func (b *OS) Delete(path string) error {
	if err := os.Remove(b.abs(path)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "bridge: delete %s", path)
	}
	return nil
}

func (b *OS) Glob(rootPath string, extension string) ([]string, error) {
	root := b.abs(rootPath)
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, "."+extension) {
			return nil
		}
		rel, err := filepath.Rel(b.rootDir, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bridge: glob %s", rootPath)
	}
	sort.Strings(out)
	return out, nil
}

func (b *OS) PutConfig(path string, contents string) error {
	if !b.build {
		return nil
	}
	return b.Put(path, contents)
}

func (b *OS) SupportsBuilding() bool {
	return b.build
}

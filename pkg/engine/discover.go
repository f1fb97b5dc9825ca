package engine

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

var skillFileNames = []string{"SKILL.md", "skill.md"}

// Source is a skill source located on disk, paired with the kind implied by
// its file extension.
type Source struct {
	Path string
	Kind skill.Kind
}

// FindSkillFile locates the skill markdown file in a directory.
func FindSkillFile(dir string) (string, error) {
	for _, name := range skillFileNames {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", errors.Errorf("no SKILL.md found in %s", dir)
}

// ResolveSources expands a path or glob pattern into concrete skill sources.
// Directories resolve to their SKILL.md; .wasm files resolve to sandboxed
// modules; .md files resolve to native skills. Matches come back sorted so
// repeated runs load skills in a stable order.
func ResolveSources(pattern string) ([]Source, error) {
	var paths []string

	info, err := os.Stat(pattern)
	switch {
	case err == nil && info.IsDir():
		path, err := FindSkillFile(pattern)
		if err != nil {
			return nil, err
		}
		paths = []string{path}
	case err == nil:
		paths = []string{pattern}
	default:
		base, pat := doublestar.SplitPattern(filepath.ToSlash(pattern))
		matches, err := doublestar.Glob(os.DirFS(base), pat)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid skill pattern %q", pattern)
		}
		for _, m := range matches {
			paths = append(paths, filepath.Join(base, filepath.FromSlash(m)))
		}
	}

	sort.Strings(paths)

	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		kind, err := kindForPath(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{Path: path, Kind: kind})
	}
	if len(sources) == 0 {
		return nil, errors.Errorf("no skill sources match %q", pattern)
	}
	return sources, nil
}

// LoadPath reads and loads a single skill source from disk.
func (e *Engine) LoadPath(ctx context.Context, path string) (*skill.Definition, error) {
	kind, err := kindForPath(path)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read skill source %s", path)
	}
	return e.LoadDefinition(ctx, source, kind)
}

func kindForPath(path string) (skill.Kind, error) {
	switch filepath.Ext(path) {
	case ".wasm":
		return skill.SandboxedModule, nil
	case ".md":
		return skill.NativeCommand, nil
	default:
		return "", errors.Errorf("unsupported skill source %q: expected .md or .wasm", path)
	}
}

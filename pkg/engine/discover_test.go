package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillrun-dev/skillrun/pkg/types/skill"
)

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindSkillFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "content")

	path, err := FindSkillFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "SKILL.md"), path)
}

func TestFindSkillFileLowercase(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "skill.md"), "content")

	path, err := FindSkillFile(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "skill.md"), path)
}

func TestFindSkillFileMissing(t *testing.T) {
	_, err := FindSkillFile(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no SKILL.md")
}

func TestResolveSourcesDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "SKILL.md"), "content")

	sources, err := ResolveSources(dir)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, filepath.Join(dir, "SKILL.md"), sources[0].Path)
	assert.Equal(t, skill.NativeCommand, sources[0].Kind)
}

func TestResolveSourcesSingleFiles(t *testing.T) {
	dir := t.TempDir()
	mdPath := filepath.Join(dir, "weather.md")
	wasmPath := filepath.Join(dir, "weather.wasm")
	writeFile(t, mdPath, "content")
	writeFile(t, wasmPath, "\x00asm")

	sources, err := ResolveSources(mdPath)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, skill.NativeCommand, sources[0].Kind)

	sources, err = ResolveSources(wasmPath)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, skill.SandboxedModule, sources[0].Kind)
}

func TestResolveSourcesGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "b", "SKILL.md"), "content")
	writeFile(t, filepath.Join(dir, "a", "SKILL.md"), "content")
	writeFile(t, filepath.Join(dir, "a", "README.md"), "content")

	sources, err := ResolveSources(filepath.Join(dir, "*", "SKILL.md"))
	require.NoError(t, err)
	require.Len(t, sources, 2)

	// stable order across runs
	assert.Equal(t, filepath.Join(dir, "a", "SKILL.md"), sources[0].Path)
	assert.Equal(t, filepath.Join(dir, "b", "SKILL.md"), sources[1].Path)
}

func TestResolveSourcesDoublestarGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "x", "y", "SKILL.md"), "content")
	writeFile(t, filepath.Join(dir, "SKILL.md"), "content")

	sources, err := ResolveSources(filepath.Join(dir, "**", "SKILL.md"))
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestResolveSourcesNoMatch(t *testing.T) {
	_, err := ResolveSources(filepath.Join(t.TempDir(), "*", "SKILL.md"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no skill sources match")
}

func TestResolveSourcesUnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "script.py")
	writeFile(t, path, "content")

	_, err := ResolveSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported skill source")
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "SKILL.md")
	writeFile(t, path, testSkill)

	e := New()
	def, err := e.LoadPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "greeter", def.Name)
}

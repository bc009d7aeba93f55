// Package output plans, writes and checks the files produced by an emitter.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/aymanbagabas/go-udiff"
)

// ErrStale is returned by Check when a planned file differs from disk.
var ErrStale = errors.New("generated files are out of date")

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Files maps slash-separated relative paths to contents.
type Files map[string][]byte

// Plan lists files in deterministic order.
func Plan(files Files) []PlannedFile {
	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, filepath.ToSlash(p))
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}
	return planned
}

// Write stores files under outDir. A non-empty outDir is refused unless
// force is set. Each file is written to a temp file and renamed into place.
func Write(outDir string, files Files, force bool) error {
	return WriteAll([]Set{{Dir: outDir, Files: files}}, force)
}

// Set is the files planned for one output directory.
type Set struct {
	Dir   string
	Files Files
}

// Group resolves the directory of every set and merges the sets that share
// one, in first-seen order. A file planned twice in a directory is an error.
func Group(sets []Set) ([]Set, error) {
	var out []Set
	index := map[string]int{}
	for _, s := range sets {
		abs, err := filepath.Abs(s.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolve output directory: %w", err)
		}
		i, ok := index[abs]
		if !ok {
			i = len(out)
			index[abs] = i
			out = append(out, Set{Dir: abs, Files: Files{}})
		}
		for rel, data := range s.Files {
			rel = filepath.ToSlash(rel)
			if _, dup := out[i].Files[rel]; dup {
				return nil, fmt.Errorf("file %s is planned twice in %s", rel, abs)
			}
			out[i].Files[rel] = data
		}
	}
	return out, nil
}

// WriteAll stores every set. Each distinct directory is validated once
// before the first file is written, so a refused directory leaves all of
// them untouched. When a write fails, the files written before it are
// restored and the directories it created are removed.
func WriteAll(sets []Set, force bool) error {
	sets, err := Group(sets)
	if err != nil {
		return err
	}
	for _, s := range sets {
		if err := validateOutputDirectory(s.Dir, force); err != nil {
			return err
		}
	}
	var j journal
	for _, s := range sets {
		for _, pf := range Plan(s.Files) {
			if err := j.write(s.Dir, pf, s.Files[pf.RelPath]); err != nil {
				j.rollback()
				return fmt.Errorf("write file %s: %w", pf.RelPath, err)
			}
		}
	}
	return nil
}

// journal records the changes of a WriteAll so they can be undone.
type journal struct {
	files []journalEntry
	dirs  []string
}

type journalEntry struct {
	path    string
	prev    []byte
	existed bool
}

func (j *journal) write(baseDir string, pf PlannedFile, content []byte) error {
	fullPath := filepath.Join(baseDir, filepath.FromSlash(pf.RelPath))
	var missing []string
	for d := filepath.Dir(fullPath); ; d = filepath.Dir(d) {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			break
		}
		missing = append(missing, d)
		if filepath.Dir(d) == d {
			break
		}
	}
	prev, err := os.ReadFile(fullPath)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for i := len(missing) - 1; i >= 0; i-- {
		j.dirs = append(j.dirs, missing[i])
	}
	if err := writeFileAtomic(baseDir, pf.RelPath, content, pf.Mode); err != nil {
		return err
	}
	j.files = append(j.files, journalEntry{path: fullPath, prev: prev, existed: existed})
	return nil
}

func (j *journal) rollback() {
	for i := len(j.files) - 1; i >= 0; i-- {
		e := j.files[i]
		if e.existed {
			_ = os.WriteFile(e.path, e.prev, 0o644)
		} else {
			_ = os.Remove(e.path)
		}
	}
	// Deepest first; os.Remove leaves directories that are not empty.
	for i := len(j.dirs) - 1; i >= 0; i-- {
		_ = os.Remove(j.dirs[i])
	}
}

// Diff is a unified diff between a file on disk and its planned content.
type Diff struct {
	RelPath string
	Unified string
}

// Check compares files with the contents of outDir without writing. It
// returns one Diff per stale or missing file, and ErrStale when there is
// at least one.
func Check(outDir string, files Files) ([]Diff, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	var diffs []Diff
	for _, pf := range Plan(files) {
		want := string(files[pf.RelPath])
		have, err := os.ReadFile(filepath.Join(abs, filepath.FromSlash(pf.RelPath)))
		switch {
		case errors.Is(err, os.ErrNotExist):
			have = nil
		case err != nil:
			return nil, fmt.Errorf("read %s: %w", pf.RelPath, err)
		}
		if string(have) == want {
			continue
		}
		diffs = append(diffs, Diff{
			RelPath: pf.RelPath,
			Unified: udiff.Unified("a/"+pf.RelPath, "b/"+pf.RelPath, string(have), want),
		})
	}
	if len(diffs) > 0 {
		return diffs, fmt.Errorf("%w: %d file(s) differ in %s", ErrStale, len(diffs), abs)
	}
	return nil, nil
}

func validateOutputDirectory(absPath string, force bool) error {
	stat, err := os.Stat(absPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot access output directory %q: %w", absPath, err)
	}
	if !stat.IsDir() {
		return fmt.Errorf("output path %q is not a directory", absPath)
	}
	if force {
		return nil
	}
	entries, err := os.ReadDir(absPath)
	if err != nil {
		return fmt.Errorf("cannot read output directory %q: %w", absPath, err)
	}
	if len(entries) > 0 {
		return fmt.Errorf("output directory %q is not empty (use --force to overwrite)", absPath)
	}
	return nil
}

func writeFileAtomic(baseDir, relPath string, content []byte, mode os.FileMode) error {
	fullPath := filepath.Join(baseDir, filepath.FromSlash(relPath))
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure target directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-restbuilder-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if tmpFile != nil {
			tmpFile.Close()
		}
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Chmod(mode); err != nil {
		return fmt.Errorf("set file permissions: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	tmpFile = nil

	if err := os.Rename(tmpPath, fullPath); err != nil {
		return fmt.Errorf("atomic rename %s to %s: %w", tmpPath, fullPath, err)
	}
	success = true
	return nil
}

// Package pkgfs reads files inside an unpacked package without letting a
// caller-supplied path escape the package root.
//
// Every read goes through [Join], which rejects absolute paths and parent
// directory components and then verifies, after resolving symlinks, that
// the target is still below the root.
package pkgfs

import (
	"bufio"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/matzehuels/crateindex/pkg/errors"
)

// DefaultWindow is how many lines [ReadLines] returns when no end line is
// given.
const DefaultWindow = 500

// ReadmeNames lists the README file names [Readme] tries, in order.
var ReadmeNames = []string{
	"README.md", "README.markdown", "README.txt", "README",
	"readme.md", "readme.markdown", "readme.txt", "readme",
}

// Join resolves rel below root. It fails with INVALID_PATH for absolute or
// traversing paths and for symlinks leading out of root, and with
// FILE_NOT_FOUND when the target does not exist.
func Join(root, rel string) (string, error) {
	if err := errors.ValidatePath(rel); err != nil {
		return "", err
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", errors.New(errors.ErrCodeInvalidPath, "absolute paths are not allowed")
	}

	base, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeNotFound, err, "package root %s", root)
	}
	target, err := filepath.EvalSymlinks(filepath.Join(base, filepath.FromSlash(rel)))
	if os.IsNotExist(err) {
		return "", errors.New(errors.ErrCodeFileNotFound, "file %s not found", rel)
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", rel)
	}
	if !within(base, target) {
		return "", errors.New(errors.ErrCodeInvalidPath, "path %s leaves the package root", rel)
	}
	return target, nil
}

func within(base, target string) bool {
	r, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	return r == "." || (r != ".." && !strings.HasPrefix(r, ".."+string(filepath.Separator)))
}

// Excerpt is a line range of a file.
type Excerpt struct {
	File  string   `json:"file"`
	Start int      `json:"start"`
	End   int      `json:"end"`
	Total int      `json:"total"`
	Lines []string `json:"lines"`
	// Truncated is set when the default window cut the file short.
	Truncated bool `json:"truncated,omitempty"`
}

// ReadLines returns lines start through end of rel, 1-based and inclusive.
// start below 1 means 1. end 0 means start+DefaultWindow-1; ends past the
// file are clamped.
func ReadLines(root, rel string, start, end int) (*Excerpt, error) {
	path, err := Join(root, rel)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", rel)
	}
	defer f.Close()

	var all []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		all = append(all, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read %s", rel)
	}

	start = max(start, 1)
	ex := &Excerpt{File: rel, Start: start, Total: len(all), Lines: []string{}}
	if end <= 0 {
		end = start + DefaultWindow - 1
		ex.Truncated = end < len(all)
	}
	if end < start {
		return nil, errors.New(errors.ErrCodeInvalidInput, "end line %d is before start line %d", end, start)
	}
	ex.End = min(end, len(all))
	if start <= ex.End {
		ex.Lines = all[start-1 : ex.End]
	}
	return ex, nil
}

// Readme returns the name and content of the first README found at root.
func Readme(root string) (string, string, error) {
	for _, name := range ReadmeNames {
		path, err := Join(root, name)
		if errors.Is(err, errors.ErrCodeFileNotFound) {
			continue
		}
		if err != nil {
			return "", "", err
		}
		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", name)
		}
		return name, string(data), nil
	}
	return "", "", errors.New(errors.ErrCodeFileNotFound, "no README found")
}

// List returns the regular files below root as slash-separated relative
// paths in lexical order. Hidden entries, target/ and paths matched by the
// root .gitignore are left out. A positive limit caps the result; truncated
// reports whether files were dropped.
func List(root string, limit int) (files []string, truncated bool, err error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeNotFound, err, "package root %s", root)
	}
	if !info.IsDir() {
		return nil, false, errors.New(errors.ErrCodeInvalidPath, "package root %s is not a directory", root)
	}
	gi, _ := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == root {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") || name == "target" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if gi != nil && gi.MatchesPath(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(errors.ErrCodeInvalidPath, err, "walk %s", root)
	}
	sort.Strings(files)
	if limit > 0 && len(files) > limit {
		return files[:limit], true, nil
	}
	return files, false, nil
}

// Match is one line matched by [Grep].
type Match struct {
	File string `json:"file"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Grep matches re against every line of the Rust sources below root and
// returns the matches in file and line order. A positive limit stops the
// search early; truncated reports whether it did.
func Grep(root string, re *regexp.Regexp, limit int) (matches []Match, truncated bool, err error) {
	files, _, err := List(root, 0)
	if err != nil {
		return nil, false, err
	}
	for _, rel := range files {
		if filepath.Ext(rel) != ".rs" {
			continue
		}
		f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			continue
		}
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for n := 1; sc.Scan(); n++ {
			if !re.MatchString(sc.Text()) {
				continue
			}
			if limit > 0 && len(matches) == limit {
				f.Close()
				return matches, true, nil
			}
			matches = append(matches, Match{File: rel, Line: n, Text: strings.TrimSpace(sc.Text())})
		}
		f.Close()
	}
	return matches, false, nil
}

package sync

import (
	"bufio"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/pulsepoint/svnsync/internal/core/interfaces"
)

const (
	// MetadataDir is the working-copy administrative directory
	MetadataDir = ".svn"

	// IgnoreFileName is read from the root and merged with the configured patterns
	IgnoreFileName = ".svnsyncignore"
)

// ignoreList decides which local entries push must not put under version control
type ignoreList struct {
	ignore *gitignore.GitIgnore
}

func newIgnoreList(root string, patterns []string, log *zap.Logger) *ignoreList {
	return &ignoreList{ignore: gitignore.CompileIgnoreLines(IgnoreLines(root, patterns, log)...)}
}

// IgnoreLines returns patterns followed by the lines of the ignore file in
// root. Blank lines and # comments are dropped.
func IgnoreLines(root string, patterns []string, log *zap.Logger) []string {
	lines := append([]string(nil), patterns...)

	ignorePath := filepath.Join(root, IgnoreFileName)
	file, err := os.Open(ignorePath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("Failed to open ignore file", zap.String("path", ignorePath), zap.Error(err))
		}
		return lines
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("Error reading ignore file", zap.String("path", ignorePath), zap.Error(err))
	}
	return lines
}

// ShouldIgnore reports whether a root-relative, slash-separated path is ignored
func (l *ignoreList) ShouldIgnore(rel string) bool {
	return l.ignore.MatchesPath(rel)
}

// localEntries lists every entry under root in walk order, skipping the
// metadata directory and ignored entries
func localEntries(root string, ignore *ignoreList) ([]string, error) {
	var entries []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		if d.IsDir() && d.Name() == MetadataDir {
			return filepath.SkipDir
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			// directory patterns such as "build/" only match with the slash
			if ignore.ShouldIgnore(rel) || ignore.ShouldIgnore(rel+"/") {
				return filepath.SkipDir
			}
		} else if ignore.ShouldIgnore(rel) {
			return nil
		}

		entries = append(entries, path)
		return nil
	})

	return entries, err
}

// unversionedEntries picks the entries push has to add. Entries below an
// unversioned directory are covered by the directory's recursive add.
func unversionedEntries(entries []string, status []interfaces.StatusEntry) []string {
	unversioned := mapset.NewThreadUnsafeSet[string]()
	for _, s := range status {
		if s.ContentStatus == interfaces.StatusUnversioned {
			unversioned.Add(filepath.Clean(s.Path))
		}
	}

	var out []string
	var added []string
	for _, entry := range entries {
		if coveredBy(entry, added) {
			continue
		}
		if unversioned.Contains(filepath.Clean(entry)) {
			out = append(out, entry)
			added = append(added, entry)
		}
	}
	return out
}

func coveredBy(entry string, dirs []string) bool {
	for _, dir := range dirs {
		if strings.HasPrefix(entry, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// changedEntries returns the root-relative paths of tracked entries with local changes
func changedEntries(root string, status []interfaces.StatusEntry) []string {
	changed := mapset.NewThreadUnsafeSet[string]()
	for _, s := range status {
		switch s.ContentStatus {
		case interfaces.StatusModified, interfaces.StatusAdded, interfaces.StatusDeleted:
		default:
			continue
		}
		rel, err := filepath.Rel(root, s.Path)
		if err != nil {
			rel = s.Path
		}
		changed.Add(filepath.ToSlash(rel))
	}

	out := changed.ToSlice()
	sort.Strings(out)
	return out
}

// pushMessage builds the log message listing the committed entries
func pushMessage(changed []string) string {
	var b strings.Builder
	b.WriteString("Next files were modified:\n")
	for _, entry := range changed {
		b.WriteString(entry)
		b.WriteString("\n")
	}
	return b.String()
}

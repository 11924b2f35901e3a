package sync

import (
	"bufio"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/jpfrdev/folder-sync/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreFileName is the optional per-source exclusion file, one
// gitignore-style pattern per line. The file itself is always excluded
// from the mirror.
const IgnoreFileName = ".syncignore"

// IgnoreList decides which paths the mirror does not manage: excluded
// entries are never copied to the replica and never deleted from it.
type IgnoreList struct {
	fs       afero.Fs
	log      *slog.Logger
	baseDir  string
	patterns []string
	ignore   *gitignore.GitIgnore
}

func NewIgnoreList(fs afero.Fs, log *slog.Logger, baseDir string, patterns []string) *IgnoreList {
	return &IgnoreList{
		fs:       fs,
		log:      log,
		baseDir:  baseDir,
		patterns: patterns,
	}
}

// Load compiles the exclusion patterns plus the optional ignore file at the
// base directory. With no patterns and no ignore file, only the ignore file
// name itself is excluded.
func (s *IgnoreList) Load() {
	ignoreLines := []string{IgnoreFileName}
	ignoreLines = append(ignoreLines, s.patterns...)

	ignorePath := filepath.Join(s.baseDir, IgnoreFileName)
	if ok, _ := afero.Exists(s.fs, ignorePath); ok {
		file, err := s.fs.Open(ignorePath)
		if err != nil {
			s.log.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}

			if err := scanner.Err(); err != nil {
				s.log.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				s.log.Info("loaded ignore file", "path", ignorePath, "rules", rules)
			}
		}
	}

	s.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether path is excluded from the mirror. Absolute
// paths are matched relative to the base directory; paths outside it never
// match.
func (s *IgnoreList) ShouldIgnore(path string) bool {
	if s.ignore == nil {
		return false
	}

	if filepath.IsAbs(path) {
		if !utils.IsSubPath(s.baseDir, path) {
			return false
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return false
		}
		path = rel
	}

	return s.ignore.MatchesPath(path)
}

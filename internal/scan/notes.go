package scan

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tasknexus/decomp-engine/internal/domain"
)

// notePatterns match TODO/FIXME/HACK/NOTE markers in line comments, block
// comments, and hash comments. The marker text is capture group 2.
var notePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)//\s*(TODO|FIXME|HACK|NOTE):\s*(.+)`),
	regexp.MustCompile(`(?i)/\*\s*(TODO|FIXME|HACK|NOTE):\s*(.+?)\s*\*/`),
	regexp.MustCompile(`(?i)#\s*(TODO|FIXME|HACK|NOTE):\s*(.+)`),
}

// noteExtensions are the file types scanned for comment markers.
var noteExtensions = map[string]struct{}{
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".py": {}, ".md": {}, ".go": {}, ".rs": {},
}

// notes scans source files for comment markers. Each note records the
// project-relative file path and the trimmed marker text.
func (s *Scanner) notes() []domain.Note {
	var out []domain.Note
	for _, dir := range s.sourceDirs {
		base := filepath.Join(s.root, dir)
		info, err := os.Stat(base)
		if err != nil || !info.IsDir() {
			continue
		}
		_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if _, skip := s.excludeDirs[d.Name()]; skip {
					return filepath.SkipDir
				}
				return nil
			}
			if _, ok := noteExtensions[filepath.Ext(path)]; !ok {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(s.root, path)
			if err != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			for _, pattern := range notePatterns {
				for _, m := range pattern.FindAllStringSubmatch(string(content), -1) {
					out = append(out, domain.Note{
						Location: rel,
						Text:     strings.TrimSpace(m[2]),
					})
				}
			}
			return nil
		})
	}
	return out
}

// Package artifact enumerates crash-dump files in a watched directory.
//
// Scans are single-level and read-only. Only regular files whose extension
// matches the configured suffix are reported; everything else, including
// subdirectories such as the archive, is ignored.
package artifact

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultSuffix is the extension matched when none is configured.
const DefaultSuffix = ".dmp"

// Artifact is a dump file observed during a scan. Name is its identity.
type Artifact struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// DirectoryLister lists the immediate entries of a directory.
type DirectoryLister interface {
	ReadDir(path string) ([]fs.DirEntry, error)
}

// OSLister reads directories from the local filesystem.
type OSLister struct{}

func (OSLister) ReadDir(path string) ([]fs.DirEntry, error) {
	return os.ReadDir(path)
}

// ScanError reports a watched directory that could not be enumerated. It is
// retryable; the next cycle scans again.
type ScanError struct {
	Dir string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s: %v", e.Dir, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scanner finds artifacts by suffix.
type Scanner struct {
	lister DirectoryLister
	suffix string
}

// NewScanner builds a scanner. A nil lister uses the local filesystem and an
// empty suffix falls back to DefaultSuffix.
func NewScanner(lister DirectoryLister, suffix string) *Scanner {
	if lister == nil {
		lister = OSLister{}
	}
	return &Scanner{lister: lister, suffix: normalizeSuffix(suffix)}
}

// Suffix returns the extension the scanner matches.
func (s *Scanner) Suffix() string { return s.suffix }

// WithSuffix returns a scanner sharing the lister but matching suffix.
func (s *Scanner) WithSuffix(suffix string) *Scanner {
	return &Scanner{lister: s.lister, suffix: normalizeSuffix(suffix)}
}

// Matches reports whether name carries the scanner's suffix.
func (s *Scanner) Matches(name string) bool {
	return strings.EqualFold(filepath.Ext(name), s.suffix)
}

// Scan lists dir and returns matching regular files sorted by name.
func (s *Scanner) Scan(ctx context.Context, dir string) ([]Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := s.lister.ReadDir(dir)
	if err != nil {
		return nil, &ScanError{Dir: dir, Err: err}
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !s.Matches(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat.
			continue
		}
		artifacts = append(artifacts, Artifact{
			Name:    entry.Name(),
			Path:    filepath.Join(dir, entry.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

// Names returns the identities of artifacts in order.
func Names(artifacts []Artifact) []string {
	names := make([]string, len(artifacts))
	for i, a := range artifacts {
		names[i] = a.Name
	}
	return names
}

// TotalSize sums artifact sizes.
func TotalSize(artifacts []Artifact) int64 {
	var total int64
	for _, a := range artifacts {
		total += a.Size
	}
	return total
}

func normalizeSuffix(suffix string) string {
	suffix = strings.ToLower(strings.TrimSpace(suffix))
	if suffix == "" {
		return DefaultSuffix
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return suffix
}

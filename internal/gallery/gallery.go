// Package gallery stores generated images on local disk with a
// keep-the-newest retention policy, and optionally mirrors saves to an
// S3-compatible bucket.
package gallery

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Artifact describes one stored image.
type Artifact struct {
	FileName  string    `json:"fileName"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store owns the artifact directory.
type Store struct {
	dir    string
	keep   int
	mirror *Mirror
}

// NewStore creates the directory if needed and returns the store. keep is
// the number of newest files retained after each save.
func NewStore(dir string, keep int, mirror *Mirror) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("gallery: create dir failed: %w", err)
	}
	if keep <= 0 {
		keep = 10
	}
	return &Store{dir: dir, keep: keep, mirror: mirror}, nil
}

// Dir returns the artifact directory, for static file serving.
func (s *Store) Dir() string {
	return s.dir
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// SanitizePrompt converts a prompt into a filename-safe prefix.
func SanitizePrompt(prompt string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(prompt), "_")
	cleaned = strings.Trim(cleaned, "_")
	if len(cleaned) > 40 {
		cleaned = cleaned[:40]
	}
	if cleaned == "" {
		cleaned = "image"
	}
	return cleaned
}

// Save writes the image bytes under {epochMillis}_{sanitizedPrompt}.png,
// prunes retention, and mirrors the file when a mirror is configured.
func (s *Store) Save(prompt string, data []byte) (*Artifact, error) {
	fileName := fmt.Sprintf("%d_%s.png", time.Now().UnixMilli(), SanitizePrompt(prompt))
	path := filepath.Join(s.dir, fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("gallery: write %s failed: %w", fileName, err)
	}

	if deleted, err := s.prune(); err != nil {
		log.Warnf("gallery: retention prune failed: %v", err)
	} else if deleted > 0 {
		log.Debugf("gallery: pruned %d old artifact(s)", deleted)
	}

	if s.mirror != nil {
		// Mirror failures must never fail the save.
		go s.mirror.Upload(fileName, data)
	}

	return &Artifact{
		FileName:  fileName,
		URL:       "/images/files/" + fileName,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
	}, nil
}

// prune removes oldest-first until at most keep files remain. Returns the
// number of deleted files.
func (s *Store) prune() (int, error) {
	artifacts, err := s.scan()
	if err != nil {
		return 0, err
	}
	if len(artifacts) <= s.keep {
		return 0, nil
	}
	deleted := 0
	for _, old := range artifacts[s.keep:] {
		if err = os.Remove(filepath.Join(s.dir, old.FileName)); err != nil {
			log.Warnf("gallery: remove %s failed: %v", old.FileName, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// scan lists artifacts newest first.
func (s *Store) scan() ([]Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("gallery: read dir failed: %w", err)
	}
	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".png") {
			continue
		}
		info, errInfo := entry.Info()
		if errInfo != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			FileName:  entry.Name(),
			URL:       "/images/files/" + entry.Name(),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			// Filenames start with epoch millis, so name order is age order.
			return artifacts[i].FileName > artifacts[j].FileName
		}
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// List returns one page of artifacts, newest first, plus the total count.
func (s *Store) List(page, pageSize int) ([]Artifact, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	artifacts, err := s.scan()
	if err != nil {
		return nil, 0, err
	}
	total := len(artifacts)
	start := (page - 1) * pageSize
	if start >= total {
		return []Artifact{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return artifacts[start:end], total, nil
}

package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
)

// PathIgnorer matches slash-separated relative paths against doublestar globs.
type PathIgnorer struct {
	patterns []string
}

func NewPathIgnorer(patterns []string) *PathIgnorer {
	cleaned := make([]string, 0, len(patterns))
	for _, pattern := range patterns {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			cleaned = append(cleaned, filepath.ToSlash(pattern))
		}
	}
	return &PathIgnorer{patterns: cleaned}
}

func (pi *PathIgnorer) IsIgnored(path string) bool {
	path = filepath.ToSlash(path)
	return slices.ContainsFunc(pi.patterns, func(pattern string) bool {
		ok, err := doublestar.Match(pattern, path)
		return err == nil && ok
	})
}

// ComputeFileHash returns the hex sha256 of the file content.
func ComputeFileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// BuildFileManifest hashes every regular file under root whose relative path
// matches pattern and is not ignored. Keys are absolute paths.
func BuildFileManifest(root, pattern string, ignorer *PathIgnorer) (map[string]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	manifest := make(map[string]string)
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return err
		}
		if ignorer.IsIgnored(rel) {
			log.Debug().Str("path", rel).Msg("Ignored")
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		if ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel)); !ok {
			return nil
		}
		sum, err := ComputeFileHash(path)
		if err != nil {
			// Files can vanish mid-build; the next diff picks them up.
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable artifact")
			return nil
		}
		manifest[path] = sum
		return nil
	})
	return manifest, err
}

// DiffManifests classifies every path that differs between two manifests.
func DiffManifests(previous, current map[string]string) map[string]ChangeType {
	changes := make(map[string]ChangeType)
	for path, hash := range current {
		oldHash, exists := previous[path]
		switch {
		case !exists:
			changes[path] = ChangeAdded
		case oldHash != hash:
			changes[path] = ChangeModified
		}
	}
	for path := range previous {
		if _, exists := current[path]; !exists {
			changes[path] = ChangeRemoved
		}
	}
	return changes
}

package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"comment-insights/internal/models"
)

const cacheKeyLength = 32

// ResultStore persists one analysis result file per (video, cache key). Saving a result
// prunes the files left behind by older configurations of the same video.
type ResultStore struct {
	dir string
	mu  sync.RWMutex
}

// ResultFile describes a persisted result on disk
type ResultFile struct {
	VideoID  string
	CacheKey string
	Path     string
	// Err is set by LoadAll when the file could not be decoded
	Err error
}

// NewResultStore creates a result store with persistent storage in dir
func NewResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create analysis directory: %w", err)
	}
	return &ResultStore{dir: dir}, nil
}

// Path returns the result file for a video and cache key
func (rs *ResultStore) Path(videoID, cacheKey string) string {
	return filepath.Join(rs.dir, videoID+"_"+cacheKey+".json")
}

// Lookup loads the result stored under the cache key, if any
func (rs *ResultStore) Lookup(videoID, cacheKey string) (*models.VideoAnalysisResult, bool, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	var result models.VideoAnalysisResult
	if err := ReadJSON(rs.Path(videoID, cacheKey), &result); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &result, true, nil
}

// Save writes the result and removes results of the same video stored under other keys
func (rs *ResultStore) Save(result *models.VideoAnalysisResult) error {
	if result.VideoID == "" || len(result.CacheKey) != cacheKeyLength {
		return errors.New("result is missing its video id or cache key")
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := WriteJSONAtomic(rs.Path(result.VideoID, result.CacheKey), result); err != nil {
		return fmt.Errorf("failed to save result for %s: %w", result.VideoID, err)
	}

	files, err := rs.list()
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.VideoID == result.VideoID && f.CacheKey != result.CacheKey {
			if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to prune stale result %s: %w", f.Path, err)
			}
		}
	}
	return nil
}

// List returns the persisted result files sorted by video id
func (rs *ResultStore) List() ([]ResultFile, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return rs.list()
}

// LoadAll reads every persisted result. Files that cannot be decoded are skipped and
// returned separately so one damaged file does not hide the others.
func (rs *ResultStore) LoadAll() ([]*models.VideoAnalysisResult, []ResultFile, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	files, err := rs.list()
	if err != nil {
		return nil, nil, err
	}

	results := make([]*models.VideoAnalysisResult, 0, len(files))
	var unreadable []ResultFile
	for _, f := range files {
		var result models.VideoAnalysisResult
		if err := ReadJSON(f.Path, &result); err != nil {
			f.Err = err
			unreadable = append(unreadable, f)
			continue
		}
		results = append(results, &result)
	}
	return results, unreadable, nil
}

// Clear removes every result of videoID, or all results when videoID is empty
func (rs *ResultStore) Clear(videoID string) (int, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	files, err := rs.list()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		if videoID != "" && f.VideoID != videoID {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove %s: %w", f.Path, err)
		}
		removed++
	}
	return removed, nil
}

func (rs *ResultStore) list() ([]ResultFile, error) {
	entries, err := os.ReadDir(rs.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read analysis directory: %w", err)
	}

	var files []ResultFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		videoID, key, ok := parseResultName(e.Name())
		if !ok {
			continue
		}
		files = append(files, ResultFile{
			VideoID:  videoID,
			CacheKey: key,
			Path:     filepath.Join(rs.dir, e.Name()),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].VideoID != files[j].VideoID {
			return files[i].VideoID < files[j].VideoID
		}
		return files[i].CacheKey < files[j].CacheKey
	})
	return files, nil
}

// parseResultName splits "<video_id>_<32 hex>.json". Video ids may contain underscores,
// so the key is taken from the end.
func parseResultName(name string) (videoID, cacheKey string, ok bool) {
	base, found := strings.CutSuffix(name, ".json")
	if !found || len(base) < cacheKeyLength+2 {
		return "", "", false
	}
	sep := len(base) - cacheKeyLength - 1
	if base[sep] != '_' {
		return "", "", false
	}
	cacheKey = base[sep+1:]
	if _, err := hex.DecodeString(cacheKey); err != nil {
		return "", "", false
	}
	return base[:sep], cacheKey, true
}

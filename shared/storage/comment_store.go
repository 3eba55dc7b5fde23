package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"comment-insights/internal/models"
)

// CommentStore keeps one JSON-lines file of raw comments per video plus the video index
type CommentStore struct {
	dir       string
	indexFile string
}

// NewCommentStore creates a comment store rooted at dir
func NewCommentStore(dir, indexFile string) (*CommentStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create comments directory: %w", err)
	}
	return &CommentStore{dir: dir, indexFile: indexFile}, nil
}

// Path returns the comment file of a video
func (cs *CommentStore) Path(videoID string) string {
	return filepath.Join(cs.dir, "comments_"+videoID+".json")
}

// Exists reports whether comments were already downloaded for the video
func (cs *CommentStore) Exists(videoID string) bool {
	_, err := os.Stat(cs.Path(videoID))
	return err == nil
}

// Save writes the comments of a video as JSON lines
func (cs *CommentStore) Save(videoID string, comments []models.Comment) (string, error) {
	path := cs.Path(videoID)
	err := WriteFileAtomic(path, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		for _, c := range comments {
			if err := encoder.Encode(c); err != nil {
				return fmt.Errorf("failed to encode comment %s: %w", c.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save comments for %s: %w", videoID, err)
	}
	return path, nil
}

// Comments reads the stored comments of a video. Both JSON lines and a single JSON
// array are accepted.
func (cs *CommentStore) Comments(ctx context.Context, videoID string) ([]models.Comment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cs.Path(videoID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("comments for %s: %w", videoID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read comments for %s: %w", videoID, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var comments []models.Comment
		if err := json.Unmarshal(trimmed, &comments); err != nil {
			return nil, fmt.Errorf("failed to decode comments for %s: %w", videoID, err)
		}
		return comments, nil
	}

	var comments []models.Comment
	scanner := bufio.NewScanner(bytes.NewReader(trimmed))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var c models.Comment
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("failed to decode comment on line %d of %s: %w", line, videoID, err)
		}
		comments = append(comments, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan comments for %s: %w", videoID, err)
	}
	return comments, nil
}

// WriteIndex records the downloaded videos
func (cs *CommentStore) WriteIndex(videos []models.VideoRef) error {
	return WriteJSONAtomic(cs.indexFile, models.VideoIndex{
		CreatedAt: time.Now().UTC(),
		Videos:    videos,
	})
}

// ReadIndex loads the video index written by the download step
func (cs *CommentStore) ReadIndex() (*models.VideoIndex, error) {
	var index models.VideoIndex
	if err := ReadJSON(cs.indexFile, &index); err != nil {
		return nil, err
	}
	return &index, nil
}

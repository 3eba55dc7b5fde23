package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"comment-insights/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(videoID string, keyDigit byte) *models.VideoAnalysisResult {
	return &models.VideoAnalysisResult{
		VideoID:    videoID,
		CacheKey:   strings.Repeat(string(keyDigit), 32),
		Merged:     &models.BatchResult{Comments: 1},
		AnalyzedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestResultStoreLookupAndSave(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := rs.Lookup("vid", strings.Repeat("a", 32))
	require.NoError(t, err)
	assert.False(t, ok)

	r := testResult("vid", 'a')
	require.NoError(t, rs.Save(r))

	got, ok, err := rs.Lookup("vid", r.CacheKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.VideoID, got.VideoID)
	assert.Equal(t, 1, got.Merged.Comments)
}

func TestResultStorePrunesOtherKeys(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, rs.Save(testResult("vid", 'a')))
	require.NoError(t, rs.Save(testResult("vid_2", 'a')))
	require.NoError(t, rs.Save(testResult("vid", 'b')))

	files, err := rs.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "vid", files[0].VideoID)
	assert.Equal(t, strings.Repeat("b", 32), files[0].CacheKey)
	assert.Equal(t, "vid_2", files[1].VideoID, "video ids with underscores are not pruned as prefixes")
}

func TestResultStoreRejectsMissingKey(t *testing.T) {
	rs, err := NewResultStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, rs.Save(&models.VideoAnalysisResult{VideoID: "vid"}))
}

func TestResultStoreLoadAllAndClear(t *testing.T) {
	dir := t.TempDir()
	rs, err := NewResultStore(dir)
	require.NoError(t, err)

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, rs.Save(testResult(id, '1')))
	}
	// unrelated files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0644))

	all, unreadable, err := rs.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, unreadable)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].VideoID)

	removed, err := rs.Clear("b")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = rs.Clear("")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	all, _, err = rs.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResultStoreLoadAllSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	rs, err := NewResultStore(dir)
	require.NoError(t, err)

	require.NoError(t, rs.Save(testResult("good", '1')))
	badPath := rs.Path("bad", strings.Repeat("2", 32))
	require.NoError(t, os.WriteFile(badPath, []byte("{truncated"), 0644))

	all, unreadable, err := rs.LoadAll()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "good", all[0].VideoID)

	require.Len(t, unreadable, 1)
	assert.Equal(t, "bad", unreadable[0].VideoID)
	assert.Equal(t, badPath, unreadable[0].Path)
	assert.Error(t, unreadable[0].Err)
}

func TestParseResultName(t *testing.T) {
	key := strings.Repeat("0f", 16)
	tests := []struct {
		name   string
		file   string
		wantID string
		wantOK bool
	}{
		{"simple", "abc_" + key + ".json", "abc", true},
		{"underscore id", "a_b-c_" + key + ".json", "a_b-c", true},
		{"no key", "abc.json", "", false},
		{"not hex", "abc_" + strings.Repeat("z", 32) + ".json", "", false},
		{"wrong ext", "abc_" + key + ".txt", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, gotKey, ok := parseResultName(tt.file)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
			if ok {
				assert.Equal(t, key, gotKey)
			}
		})
	}
}

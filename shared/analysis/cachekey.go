package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"comment-insights/internal/models"
)

type cacheKeyInput struct {
	VideoID string `json:"video_id"`
	models.AnalysisConfig
}

// CacheKey derives a stable identifier from a video id and every setting that affects
// its analysis. Any change to those settings yields a different key.
func CacheKey(videoID string, cfg models.AnalysisConfig) string {
	// struct fields marshal in declaration order, so the encoding is canonical
	data, _ := json.Marshal(cacheKeyInput{VideoID: videoID, AnalysisConfig: cfg})
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

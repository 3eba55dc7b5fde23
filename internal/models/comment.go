package models

import "time"

// Comment is a single downloaded YouTube comment. Comments are written once by the
// download step and never mutated afterwards.
type Comment struct {
	ID          string    `json:"id"`
	Author      string    `json:"author"`
	Text        string    `json:"text"`
	Language    string    `json:"language,omitempty"` // ISO 639-1, empty when unknown
	PublishedAt time.Time `json:"published_at"`
	LikeCount   int64     `json:"like_count"`
	IsReply     bool      `json:"is_reply,omitempty"`
}

// VideoRef links a configured video to its comment file.
type VideoRef struct {
	VideoID     string `json:"video_id"`
	VideoURL    string `json:"video_url"`
	CommentFile string `json:"comment_file"`
}

// VideoIndex is the index file written by the download step.
type VideoIndex struct {
	CreatedAt time.Time  `json:"created_at"`
	Videos    []VideoRef `json:"videos"`
}

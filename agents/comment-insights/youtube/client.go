package youtube

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"comment-insights/internal/models"
	"comment-insights/shared/config"

	"github.com/abadojack/whatlanggo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const pageSize = 100

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,20}$`)

// Client downloads comment threads through the YouTube Data API
type Client struct {
	service     *youtube.Service
	maxComments int
	logger      *zap.Logger
}

// NewClient authenticates with an API key when one is configured, otherwise with the
// OAuth device flow and a persisted token
func NewClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Client, error) {
	if err := cfg.RequireYouTube(); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if cfg.YouTube.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.YouTube.APIKey))
	} else {
		oauthConfig := &oauth2.Config{
			ClientID:     cfg.YouTube.ClientID,
			ClientSecret: cfg.YouTube.ClientSecret,
			Scopes:       []string{youtube.YoutubeForceSslScope},
			Endpoint:     google.Endpoint,
		}

		token, err := getToken(ctx, oauthConfig, cfg.YouTube.TokenFile, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to get OAuth token: %w", err)
		}

		// Create token source that auto-refreshes and saves token
		tokenSource := &tokenSaver{
			config:    oauthConfig,
			token:     token,
			tokenFile: cfg.YouTube.TokenFile,
			logger:    logger,
		}
		opts = append(opts, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
	}

	service, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	return newClient(service, cfg.MaxDownloadComments, logger), nil
}

func newClient(service *youtube.Service, maxComments int, logger *zap.Logger) *Client {
	return &Client{
		service:     service,
		maxComments: maxComments,
		logger:      logger,
	}
}

// Comments pages through every comment thread of a video, including the replies returned
// inline, until maxComments is reached (0 means no limit). Each comment is tagged with its
// detected language when detection is reliable.
func (c *Client) Comments(ctx context.Context, videoID string) ([]models.Comment, error) {
	var comments []models.Comment
	pageToken := ""

	for {
		call := c.service.CommentThreads.List([]string{"snippet", "replies"}).
			VideoId(videoID).
			MaxResults(pageSize).
			TextFormat("plainText").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return comments, fmt.Errorf("failed to list comment threads for %s: %w", videoID, err)
		}

		for _, thread := range resp.Items {
			if thread.Snippet != nil && thread.Snippet.TopLevelComment != nil {
				comments = append(comments, toComment(thread.Snippet.TopLevelComment, false))
			}
			if thread.Replies != nil {
				for _, reply := range thread.Replies.Comments {
					comments = append(comments, toComment(reply, true))
				}
			}
			if c.limitReached(len(comments)) {
				break
			}
		}

		c.logger.Debug("Fetched comment page",
			zap.String("video_id", videoID),
			zap.Int("threads", len(resp.Items)),
			zap.Int("total", len(comments)))

		if c.limitReached(len(comments)) || resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if c.maxComments > 0 && len(comments) > c.maxComments {
		comments = comments[:c.maxComments]
	}
	return comments, nil
}

func (c *Client) limitReached(n int) bool {
	return c.maxComments > 0 && n >= c.maxComments
}

func toComment(item *youtube.Comment, isReply bool) models.Comment {
	out := models.Comment{ID: item.Id, IsReply: isReply}
	if item.Snippet == nil {
		return out
	}

	out.Author = item.Snippet.AuthorDisplayName
	out.Text = item.Snippet.TextOriginal
	if out.Text == "" {
		out.Text = item.Snippet.TextDisplay
	}
	out.LikeCount = item.Snippet.LikeCount
	if publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		out.PublishedAt = publishedAt
	}
	out.Language = DetectLanguage(out.Text)
	return out
}

// DetectLanguage returns the ISO 639-1 code of text, or "" when detection is unreliable
func DetectLanguage(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < 10 {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// VideoIDFromURL extracts the video id from watch, short link, shorts and embed URLs, or
// accepts a bare id
func VideoIDFromURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid YouTube URL %q", raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	var id string
	switch host {
	case "youtu.be":
		id = segments[0]
	case "youtube.com", "music.youtube.com", "youtube-nocookie.com":
		switch {
		case segments[0] == "watch":
			id = u.Query().Get("v")
		case len(segments) > 1 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live" || segments[0] == "v"):
			id = segments[1]
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video id in URL %q", raw)
	}
	return id, nil
}

package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"recast/internal/services/httpx"
)

const (
	defaultBaseURL       = "https://www.googleapis.com/youtube/v3"
	defaultUploadBaseURL = "https://www.googleapis.com/upload/youtube/v3"
)

// Config captures the runtime settings for the YouTube Data API. APIKey
// authorizes read-side discovery calls; UploadToken is the OAuth bearer
// token required for uploads.
type Config struct {
	APIKey         string
	UploadToken    string
	BaseURL        string
	UploadBaseURL  string
	TimeoutSeconds int
}

// Client wraps the YouTube Data API v3.
type Client struct {
	cfg      Config
	http     *httpx.Client
	httpOpts []httpx.Option
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPOptions forwards options to the underlying retrying client.
func WithHTTPOptions(opts ...httpx.Option) Option {
	return func(c *Client) {
		c.httpOpts = append(c.httpOpts, opts...)
	}
}

// New constructs a YouTube client.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.UploadToken = strings.TrimSpace(cfg.UploadToken)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.UploadBaseURL = strings.TrimSpace(cfg.UploadBaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.UploadBaseURL == "" {
		cfg.UploadBaseURL = defaultUploadBaseURL
	}
	client := &Client{cfg: cfg}
	for _, opt := range opts {
		opt(client)
	}
	client.http = httpx.New(time.Duration(cfg.TimeoutSeconds)*time.Second, client.httpOpts...)
	return client, nil
}

// ChannelRef is a channel search hit.
type ChannelRef struct {
	ID          string
	Title       string
	Description string
}

// ChannelStats carries the per-channel metrics discovery scoring needs.
type ChannelStats struct {
	ID                string
	Title             string
	Subscribers       int64
	VideoCount        int64
	TotalViews        int64
	UploadsPlaylistID string
}

// Video is one video with the statistics discovery and distribution read.
type Video struct {
	ID           string
	Title        string
	Description  string
	ChannelID    string
	ChannelTitle string
	Views        int64
	Likes        int64
	Comments     int64
	DurationSec  int
	PublishedAt  time.Time
}

// SearchChannels finds channels matching the query, relevance ordered.
func (c *Client) SearchChannels(ctx context.Context, query string, limit int) ([]ChannelRef, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "channel")
	params.Set("order", "relevance")
	params.Set("maxResults", strconv.Itoa(clampResults(limit, 50)))

	var payload searchResponse
	if err := c.getJSON(ctx, "youtube search channels", "/search", params, &payload); err != nil {
		return nil, err
	}
	out := make([]ChannelRef, 0, len(payload.Items))
	for _, item := range payload.Items {
		id := item.ID.ChannelID
		if id == "" {
			id = item.Snippet.ChannelID
		}
		if id == "" {
			continue
		}
		out = append(out, ChannelRef{
			ID:          id,
			Title:       item.Snippet.Title,
			Description: item.Snippet.Description,
		})
	}
	return out, nil
}

// GetChannelStats fetches statistics and the uploads playlist for up to 50
// channels per call.
func (c *Client) GetChannelStats(ctx context.Context, ids []string) ([]ChannelStats, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", strings.Join(ids, ","))

	var payload channelListResponse
	if err := c.getJSON(ctx, "youtube channel stats", "/channels", params, &payload); err != nil {
		return nil, err
	}
	out := make([]ChannelStats, 0, len(payload.Items))
	for _, item := range payload.Items {
		stats := ChannelStats{
			ID:                item.ID,
			Title:             item.Snippet.Title,
			Subscribers:       parseCount(item.Statistics.SubscriberCount),
			VideoCount:        parseCount(item.Statistics.VideoCount),
			TotalViews:        parseCount(item.Statistics.ViewCount),
			UploadsPlaylistID: item.ContentDetails.RelatedPlaylists.Uploads,
		}
		out = append(out, stats)
	}
	return out, nil
}

// GetUploadTimes returns publish timestamps for the latest items of an
// uploads playlist, newest first.
func (c *Client) GetUploadTimes(ctx context.Context, playlistID string, limit int) ([]time.Time, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.Itoa(clampResults(limit, 50)))

	var payload playlistItemsResponse
	if err := c.getJSON(ctx, "youtube playlist items", "/playlistItems", params, &payload); err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.ContentDetails.VideoPublishedAt == "" {
			continue
		}
		if when, err := time.Parse(time.RFC3339, item.ContentDetails.VideoPublishedAt); err == nil {
			out = append(out, when)
		}
	}
	sortTimesDesc(out)
	return out, nil
}

// SearchVideoIDs lists a channel's video IDs with the given ordering
// ("date" or "viewCount"). A zero publishedAfter skips the window filter.
func (c *Client) SearchVideoIDs(ctx context.Context, channelID, order string, publishedAfter time.Time, limit int) ([]string, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("channelId", channelID)
	params.Set("type", "video")
	params.Set("order", order)
	params.Set("maxResults", strconv.Itoa(clampResults(limit, 50)))
	if !publishedAfter.IsZero() {
		params.Set("publishedAfter", publishedAfter.UTC().Format(time.RFC3339))
	}

	var payload searchResponse
	if err := c.getJSON(ctx, "youtube search videos", "/search", params, &payload); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(payload.Items))
	for _, item := range payload.Items {
		if item.ID.VideoID != "" {
			out = append(out, item.ID.VideoID)
		}
	}
	return out, nil
}

// GetVideos fetches statistics, duration, and snippet for up to 50 videos.
func (c *Client) GetVideos(ctx context.Context, ids []string) ([]Video, error) {
	if err := c.requireKey(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("part", "snippet,statistics,contentDetails")
	params.Set("id", strings.Join(ids, ","))

	var payload videoListResponse
	if err := c.getJSON(ctx, "youtube videos", "/videos", params, &payload); err != nil {
		return nil, err
	}
	out := make([]Video, 0, len(payload.Items))
	for _, item := range payload.Items {
		video := Video{
			ID:           item.ID,
			Title:        item.Snippet.Title,
			Description:  item.Snippet.Description,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
			Views:        parseCount(item.Statistics.ViewCount),
			Likes:        parseCount(item.Statistics.LikeCount),
			Comments:     parseCount(item.Statistics.CommentCount),
			DurationSec:  parseISODuration(item.ContentDetails.Duration),
		}
		if item.Snippet.PublishedAt != "" {
			if when, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
				video.PublishedAt = when
			}
		}
		out = append(out, video)
	}
	return out, nil
}

// GetVideo fetches a single video's current statistics.
func (c *Client) GetVideo(ctx context.Context, id string) (*Video, error) {
	videos, err := c.GetVideos(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("youtube videos: %q not found", id)
	}
	return &videos[0], nil
}

// HealthCheck verifies the API key with a minimal request.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.requireKey(); err != nil {
		return err
	}
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("chart", "mostPopular")
	params.Set("maxResults", "1")
	var payload videoListResponse
	return c.getJSON(ctx, "youtube health", "/videos", params, &payload)
}

func (c *Client) requireKey() error {
	if c.cfg.APIKey == "" {
		return errors.New("youtube: api key required")
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, params url.Values, target any) error {
	params.Set("key", c.cfg.APIKey)
	endpoint := c.cfg.BaseURL + path + "?" + params.Encode()
	return c.http.DoJSON(ctx, op, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	}, target)
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID   string `json:"videoId"`
			ChannelID string `json:"channelId"`
		} `json:"id"`
		Snippet struct {
			ChannelID   string `json:"channelId"`
			Title       string `json:"title"`
			Description string `json:"description"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

type channelListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title string `json:"title"`
		} `json:"snippet"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
			VideoCount      string `json:"videoCount"`
			ViewCount       string `json:"viewCount"`
		} `json:"statistics"`
		ContentDetails struct {
			RelatedPlaylists struct {
				Uploads string `json:"uploads"`
			} `json:"relatedPlaylists"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type playlistItemsResponse struct {
	Items []struct {
		ContentDetails struct {
			VideoPublishedAt string `json:"videoPublishedAt"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type videoListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			Description  string `json:"description"`
			ChannelID    string `json:"channelId"`
			ChannelTitle string `json:"channelTitle"`
			PublishedAt  string `json:"publishedAt"`
		} `json:"snippet"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

func parseCount(value string) int64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}

// parseISODuration converts an ISO 8601 duration like PT1H23M45S to seconds.
func parseISODuration(value string) int {
	value = strings.TrimPrefix(strings.TrimSpace(value), "P")
	if value == "" {
		return 0
	}
	inTime := false
	total := 0
	number := strings.Builder{}
	for _, r := range value {
		switch {
		case r == 'T':
			inTime = true
		case r >= '0' && r <= '9':
			number.WriteRune(r)
		default:
			n, err := strconv.Atoi(number.String())
			number.Reset()
			if err != nil {
				continue
			}
			switch r {
			case 'D':
				total += n * 86400
			case 'H':
				if inTime {
					total += n * 3600
				}
			case 'M':
				if inTime {
					total += n * 60
				}
			case 'S':
				total += n
			}
		}
	}
	return total
}

func clampResults(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}

func sortTimesDesc(times []time.Time) {
	sort.Slice(times, func(i, j int) bool { return times[i].After(times[j]) })
}

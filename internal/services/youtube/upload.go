package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
)

const maxUploadTags = 30

// UploadParams describes one video upload.
type UploadParams struct {
	FilePath        string
	Title           string
	Description     string
	Tags            []string
	CategoryID      string
	PrivacyStatus   string
	DefaultLanguage string
}

type uploadSnippet struct {
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	Tags                 []string `json:"tags,omitempty"`
	CategoryID           string   `json:"categoryId,omitempty"`
	DefaultLanguage      string   `json:"defaultLanguage,omitempty"`
	DefaultAudioLanguage string   `json:"defaultAudioLanguage,omitempty"`
}

type uploadStatus struct {
	PrivacyStatus           string `json:"privacyStatus"`
	SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
}

type uploadBody struct {
	Snippet uploadSnippet `json:"snippet"`
	Status  uploadStatus  `json:"status"`
}

type insertedVideo struct {
	ID string `json:"id"`
}

// UploadVideo performs a resumable upload and returns the new video ID.
func (c *Client) UploadVideo(ctx context.Context, params UploadParams) (string, error) {
	if err := c.requireUploadToken(); err != nil {
		return "", err
	}
	if strings.TrimSpace(params.FilePath) == "" {
		return "", errors.New("youtube upload: file path required")
	}
	info, err := os.Stat(params.FilePath)
	if err != nil {
		return "", fmt.Errorf("youtube upload: stat video: %w", err)
	}

	if len(params.Tags) > maxUploadTags {
		params.Tags = params.Tags[:maxUploadTags]
	}
	metadata := uploadBody{
		Snippet: uploadSnippet{
			Title:                params.Title,
			Description:          params.Description,
			Tags:                 params.Tags,
			CategoryID:           params.CategoryID,
			DefaultLanguage:      params.DefaultLanguage,
			DefaultAudioLanguage: params.DefaultLanguage,
		},
		Status: uploadStatus{
			PrivacyStatus:           normalizePrivacy(params.PrivacyStatus),
			SelfDeclaredMadeForKids: false,
		},
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("youtube upload: encode metadata: %w", err)
	}

	sessionURL, err := c.startUploadSession(ctx, encoded, info.Size())
	if err != nil {
		return "", err
	}
	return c.sendUploadBytes(ctx, sessionURL, params.FilePath, info.Size())
}

// startUploadSession initiates a resumable session and returns its URL.
func (c *Client) startUploadSession(ctx context.Context, metadata []byte, size int64) (string, error) {
	endpoint := c.cfg.UploadBaseURL + "/videos?" + url.Values{
		"uploadType": {"resumable"},
		"part":       {"snippet,status"},
	}.Encode()

	resp, err := c.http.DoResponse(ctx, "youtube upload session", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(metadata))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.UploadToken)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("X-Upload-Content-Type", "video/mp4")
		req.Header.Set("X-Upload-Content-Length", fmt.Sprintf("%d", size))
		return req, nil
	})
	if err != nil {
		return "", err
	}
	location := resp.Header.Get("Location")
	if location == "" {
		return "", errors.New("youtube upload session: no session location returned")
	}
	return location, nil
}

// sendUploadBytes streams the file to the session URL. The body is a fresh
// reader per attempt, so the retrying client can re-send it.
func (c *Client) sendUploadBytes(ctx context.Context, sessionURL, filePath string, size int64) (string, error) {
	var inserted insertedVideo
	err := c.http.DoJSON(ctx, "youtube upload bytes", func(ctx context.Context) (*http.Request, error) {
		file, err := os.Open(filePath)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, sessionURL, file)
		if err != nil {
			file.Close()
			return nil, err
		}
		req.ContentLength = size
		req.Header.Set("Content-Type", "video/mp4")
		return req, nil
	}, &inserted)
	if err != nil {
		return "", err
	}
	if inserted.ID == "" {
		return "", errors.New("youtube upload: response carried no video id")
	}
	return inserted.ID, nil
}

// SetThumbnail attaches a custom thumbnail to an uploaded video.
func (c *Client) SetThumbnail(ctx context.Context, videoID, imagePath string) error {
	if err := c.requireUploadToken(); err != nil {
		return err
	}
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("youtube thumbnail: read image: %w", err)
	}
	endpoint := c.cfg.UploadBaseURL + "/thumbnails/set?" + url.Values{"videoId": {videoID}}.Encode()

	_, err = c.http.Do(ctx, "youtube thumbnail set", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.UploadToken)
		req.Header.Set("Content-Type", contentTypeForImage(imagePath))
		return req, nil
	})
	return err
}

// AddToPlaylist inserts the video at the end of a playlist.
func (c *Client) AddToPlaylist(ctx context.Context, playlistID, videoID string) error {
	if err := c.requireUploadToken(); err != nil {
		return err
	}
	body := map[string]any{
		"snippet": map[string]any{
			"playlistId": playlistID,
			"resourceId": map[string]any{
				"kind":    "youtube#video",
				"videoId": videoID,
			},
		},
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("youtube playlist insert: encode body: %w", err)
	}
	endpoint := c.cfg.BaseURL + "/playlistItems?" + url.Values{"part": {"snippet"}}.Encode()

	_, err = c.http.Do(ctx, "youtube playlist insert", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.UploadToken)
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		return req, nil
	})
	return err
}

// CanUpload reports whether upload credentials are configured.
func (c *Client) CanUpload() bool {
	return c.cfg.UploadToken != ""
}

func (c *Client) requireUploadToken() error {
	if c.cfg.UploadToken == "" {
		return errors.New("youtube: upload token required")
	}
	return nil
}

func normalizePrivacy(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "public":
		return "public"
	case "private":
		return "private"
	case "unlisted":
		return "unlisted"
	default:
		return "public"
	}
}

func contentTypeForImage(path string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".png"):
		return "image/png"
	default:
		return "image/jpeg"
	}
}

package pruner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"tuckbot-api/internal/models"
)

// HTTP asks the external mirror service to drop its copy of a video.
type HTTP struct {
	baseURL    string
	httpClient *http.Client
}

type pruneRequest struct {
	RedditPostID string `json:"redditPostId"`
	MirrorURL    string `json:"mirrorUrl"`
}

func NewHTTP(baseURL string, client *http.Client) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (h *HTTP) Prune(ctx context.Context, video *models.Video) error {
	body, err := json.Marshal(pruneRequest{
		RedditPostID: video.RedditPostID,
		MirrorURL:    video.MirrorURL,
	})
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := h.baseURL + "/prune/" + url.PathEscape(video.RedditPostID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

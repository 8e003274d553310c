package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammad-safakhou/studyflow/models"
)

// OEmbed is the best-effort metadata of a video, from the provider's oEmbed
// endpoint. The zero value means "nothing learned" and is never an error.
type OEmbed struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     int    `json:"duration"`
}

const oembedTimeout = 5 * time.Second

// LookupOEmbed fetches oEmbed metadata for a video URL. Enrichment is
// non-essential: timeouts, non-200 responses and parse errors all yield the
// empty value rather than an error.
func LookupOEmbed(ctx context.Context, client *http.Client, rawURL string, provider models.VideoProvider) OEmbed {
	var endpoint string
	switch provider {
	case models.ProviderYouTube:
		endpoint = "https://www.youtube.com/oembed?url=" + url.QueryEscape(rawURL) + "&format=json"
	case models.ProviderVimeo:
		endpoint = "https://vimeo.com/api/oembed.json?url=" + url.QueryEscape(rawURL)
	default:
		return OEmbed{}
	}

	ctx, cancel := context.WithTimeout(ctx, oembedTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return OEmbed{}
	}
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return OEmbed{}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return OEmbed{}
	}

	var data OEmbed
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return OEmbed{}
	}
	return data
}

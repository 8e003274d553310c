package video

import (
	"fmt"
	"regexp"

	"github.com/mohammad-safakhou/studyflow/models"
)

// Metadata identifies a video URL's provider and canonical derived URLs
type Metadata struct {
	Provider     models.VideoProvider `json:"provider"`
	VideoID      string               `json:"videoId"`
	EmbedURL     string               `json:"embedUrl"`
	ThumbnailURL string               `json:"thumbnailUrl,omitempty"`
}

type pattern struct {
	provider models.VideoProvider
	re       *regexp.Regexp
}

// Patterns are tried in order; the first match wins. YouTube forms come
// before Vimeo, and the Vimeo player-embed form after the direct form.
var patterns = []pattern{
	{models.ProviderYouTube, regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/v/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)},
	{models.ProviderVimeo, regexp.MustCompile(`vimeo\.com/(\d+)`)},
	{models.ProviderVimeo, regexp.MustCompile(`player\.vimeo\.com/video/(\d+)`)},
}

// Detect matches a URL against the known video-provider patterns. It is a
// total function: malformed URLs simply fail to match and yield nil.
func Detect(rawURL string) *Metadata {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		id := m[1]
		meta := &Metadata{
			Provider: p.provider,
			VideoID:  id,
			EmbedURL: EmbedURL(p.provider, id),
		}
		if p.provider == models.ProviderYouTube {
			meta.ThumbnailURL = YouTubeThumbnail(id, "hqdefault")
		}
		// Vimeo thumbnails require an oEmbed round-trip and stay empty here
		return meta
	}
	return nil
}

// IsVideoURL reports whether the URL belongs to a known video provider
func IsVideoURL(rawURL string) bool {
	return Detect(rawURL) != nil
}

// EmbedURL returns the canonical embed URL for a provider and video ID
func EmbedURL(provider models.VideoProvider, id string) string {
	switch provider {
	case models.ProviderYouTube:
		return "https://www.youtube.com/embed/" + id
	case models.ProviderVimeo:
		return "https://player.vimeo.com/video/" + id
	}
	return ""
}

// YouTubeThumbnail returns the deterministic thumbnail URL for a YouTube
// video ID at the given quality (mqdefault, hqdefault, ...).
func YouTubeThumbnail(id, quality string) string {
	return fmt.Sprintf("https://img.youtube.com/vi/%s/%s.jpg", id, quality)
}

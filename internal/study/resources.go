package study

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/studyflow/config"
	"github.com/mohammad-safakhou/studyflow/internal/video"
	"github.com/mohammad-safakhou/studyflow/internal/youcom"
	"github.com/mohammad-safakhou/studyflow/models"
)

// ModuleResources is the resource set fetched for one module
type ModuleResources struct {
	Articles []models.ArticleResource `json:"articles"`
	Videos   []models.VideoResource   `json:"videos"`
}

// Fetcher finds articles and videos for curriculum modules
type Fetcher struct {
	gw           Gateway
	oembedClient *http.Client
	logger       *log.Logger

	maxArticles      int
	maxVideos        int
	generalCount     int
	videoCount       int
	videoQuerySuffix string
}

// NewFetcher creates a resource fetcher from config
func NewFetcher(gw Gateway, cfg config.ResourcesConfig) *Fetcher {
	f := &Fetcher{
		gw:               gw,
		oembedClient:     &http.Client{},
		logger:           log.New(log.Writer(), "[RESOURCES] ", log.LstdFlags),
		maxArticles:      cfg.MaxArticles,
		maxVideos:        cfg.MaxVideos,
		generalCount:     cfg.GeneralCount,
		videoCount:       cfg.VideoCount,
		videoQuerySuffix: cfg.VideoQuerySuffix,
	}
	if f.maxArticles <= 0 {
		f.maxArticles = 4
	}
	if f.maxVideos <= 0 {
		f.maxVideos = 3
	}
	if f.generalCount <= 0 {
		f.generalCount = 10
	}
	if f.videoCount <= 0 {
		f.videoCount = 5
	}
	if f.videoQuerySuffix == "" {
		f.videoQuerySuffix = " tutorial video youtube"
	}
	return f
}

// FetchModuleResources runs a general and a video-biased search concurrently,
// merges them with first-seen URL dedup (general results first, so they win
// collisions), partitions into articles and videos, and caps the counts.
func (f *Fetcher) FetchModuleResources(ctx context.Context, searchQuery, moduleID string) (ModuleResources, error) {
	var (
		wg                     sync.WaitGroup
		generalResp, videoResp youcom.SearchResponse
		generalErr, videoErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		generalResp, generalErr = f.gw.Search(ctx, searchQuery, &youcom.SearchOptions{Count: f.generalCount})
	}()
	go func() {
		defer wg.Done()
		videoResp, videoErr = f.gw.Search(ctx, searchQuery+f.videoQuerySuffix, &youcom.SearchOptions{Count: f.videoCount})
	}()
	wg.Wait()

	if generalErr != nil && videoErr != nil {
		return ModuleResources{}, fmt.Errorf("both searches failed for module %s: %w", moduleID, generalErr)
	}
	if generalErr != nil {
		f.logger.Printf("general search failed for module %s: %v", moduleID, generalErr)
	}
	if videoErr != nil {
		f.logger.Printf("video search failed for module %s: %v", moduleID, videoErr)
	}

	// general results concatenated first so they win URL collisions
	merged := make([]youcom.SearchWebResult, 0, len(generalResp.Results.Web)+len(videoResp.Results.Web))
	seen := make(map[string]struct{})
	for _, result := range append(generalResp.Results.Web, videoResp.Results.Web...) {
		if _, ok := seen[result.URL]; ok {
			continue
		}
		seen[result.URL] = struct{}{}
		merged = append(merged, result)
	}

	var (
		articleHits []youcom.SearchWebResult
		videoHits   []youcom.SearchWebResult
		videoMetas  []*video.Metadata
	)
	for _, result := range merged {
		if meta := video.Detect(result.URL); meta != nil {
			videoHits = append(videoHits, result)
			videoMetas = append(videoMetas, meta)
		} else {
			articleHits = append(articleHits, result)
		}
	}

	if len(articleHits) > f.maxArticles {
		articleHits = articleHits[:f.maxArticles]
	}
	if len(videoHits) > f.maxVideos {
		videoHits = videoHits[:f.maxVideos]
		videoMetas = videoMetas[:f.maxVideos]
	}

	out := ModuleResources{
		Articles: make([]models.ArticleResource, len(articleHits)),
		Videos:   make([]models.VideoResource, len(videoHits)),
	}
	for i, hit := range articleHits {
		out.Articles[i] = buildArticleResource(hit, moduleID, i)
	}

	var videoWG sync.WaitGroup
	for i := range videoHits {
		videoWG.Add(1)
		go func(i int) {
			defer videoWG.Done()
			out.Videos[i] = f.buildVideoResource(ctx, videoHits[i], videoMetas[i], moduleID, i)
		}(i)
	}
	videoWG.Wait()

	return out, nil
}

// FetchAllModuleResources fans out over all modules in parallel. Failures are
// isolated: a module whose fetch fails entirely gets empty resources, and the
// result slice always matches input order and length.
func (f *Fetcher) FetchAllModuleResources(ctx context.Context, modules []models.SubModule) []ModuleResources {
	results := make([]ModuleResources, len(modules))

	var wg sync.WaitGroup
	for i, mod := range modules {
		wg.Add(1)
		go func(i int, mod models.SubModule) {
			defer wg.Done()
			res, err := f.FetchModuleResources(ctx, mod.SearchQuery, mod.ID)
			if err != nil {
				f.logger.Printf("failed to fetch resources for module %s: %v", mod.ID, err)
				results[i] = ModuleResources{}
				return
			}
			results[i] = res
		}(i, mod)
	}
	wg.Wait()

	return results
}

func buildArticleResource(hit youcom.SearchWebResult, moduleID string, index int) models.ArticleResource {
	snippet := hit.Description
	if len(hit.Snippets) > 0 && hit.Snippets[0] != "" {
		snippet = hit.Snippets[0]
	}
	return models.ArticleResource{
		ID:            fmt.Sprintf("%s-article-%d", moduleID, index),
		URL:           hit.URL,
		Title:         hit.Title,
		Description:   hit.Description,
		Snippet:       snippet,
		Domain:        extractDomain(hit.URL),
		Favicon:       hit.FaviconURL,
		PublishedDate: hit.PageAge,
	}
}

func (f *Fetcher) buildVideoResource(ctx context.Context, hit youcom.SearchWebResult, meta *video.Metadata, moduleID string, index int) models.VideoResource {
	thumbnail := ""
	if meta.Provider == models.ProviderYouTube {
		thumbnail = video.YouTubeThumbnail(meta.VideoID, "mqdefault")
	}

	oembed := video.LookupOEmbed(ctx, f.oembedClient, hit.URL, meta.Provider)
	if thumbnail == "" {
		thumbnail = oembed.ThumbnailURL
	}

	return models.VideoResource{
		ID:            fmt.Sprintf("%s-video-%d", moduleID, index),
		URL:           hit.URL,
		Title:         hit.Title,
		Description:   hit.Description,
		Platform:      meta.Provider,
		VideoID:       meta.VideoID,
		Thumbnail:     thumbnail,
		ChannelName:   oembed.AuthorName,
		PublishedDate: hit.PageAge,
	}
}

func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

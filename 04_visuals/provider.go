package visuals

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/samber/lo"

	"shorts-pipeline/config"
	"shorts-pipeline/types"
)

// Rendition is one downloadable encoding of a stock clip.
type Rendition struct {
	URL    string
	Width  int
	Height int
}

// Hit is one search result.
type Hit struct {
	ID         string
	Renditions []Rendition
}

// Provider searches one stock footage service.
type Provider interface {
	Name() types.Provider
	Search(ctx context.Context, query string) ([]Hit, error)
}

// BestPortrait returns the tallest rendition with height >= width.
func BestPortrait(rs []Rendition) (Rendition, bool) {
	portrait := lo.Filter(rs, func(r Rendition, _ int) bool {
		return r.URL != "" && r.Height >= r.Width && r.Height > 0
	})
	if len(portrait) == 0 {
		return Rendition{}, false
	}
	return lo.MaxBy(portrait, func(a, b Rendition) bool { return a.Height > b.Height }), true
}

const userAgent = "Mozilla/5.0 (compatible; ShortsPipeline/1.0)"

func getJSON(ctx context.Context, client *http.Client, u string, header http.Header, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 8<<20)).Decode(dest)
}

// PexelsClient searches https://api.pexels.com/videos/search.
type PexelsClient struct {
	apiKey     string
	perPage    int
	baseURL    string
	httpClient *http.Client
}

// NewPexelsClient creates a Pexels client.
func NewPexelsClient(apiKey string, perPage int, timeout time.Duration) *PexelsClient {
	return &PexelsClient{
		apiKey:     apiKey,
		perPage:    perPage,
		baseURL:    "https://api.pexels.com/videos/search",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PexelsClient) Name() types.Provider { return types.ProviderPexels }

type pexelsResponse struct {
	Videos []struct {
		ID         int64 `json:"id"`
		VideoFiles []struct {
			Link   string `json:"link"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		} `json:"video_files"`
	} `json:"videos"`
}

// Search implements Provider.
func (p *PexelsClient) Search(ctx context.Context, query string) ([]Hit, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("orientation", "portrait")
	q.Set("per_page", strconv.Itoa(p.perPage))
	q.Set("size", "small")

	var res pexelsResponse
	header := http.Header{"Authorization": []string{p.apiKey}}
	if err := getJSON(ctx, p.httpClient, p.baseURL+"?"+q.Encode(), header, &res); err != nil {
		return nil, fmt.Errorf("pexels search %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Videos))
	for _, v := range res.Videos {
		h := Hit{ID: strconv.FormatInt(v.ID, 10)}
		for _, f := range v.VideoFiles {
			h.Renditions = append(h.Renditions, Rendition{URL: f.Link, Width: f.Width, Height: f.Height})
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// PixabayClient searches https://pixabay.com/api/videos/. Queries get
// "abstract cinematic" appended; Pixabay ranks mood footage better that way.
type PixabayClient struct {
	apiKey     string
	perPage    int
	baseURL    string
	httpClient *http.Client
}

// NewPixabayClient creates a Pixabay video client.
func NewPixabayClient(apiKey string, perPage int, timeout time.Duration) *PixabayClient {
	return &PixabayClient{
		apiKey:     apiKey,
		perPage:    max(perPage, 3), // Pixabay rejects per_page < 3
		baseURL:    "https://pixabay.com/api/videos/",
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *PixabayClient) Name() types.Provider { return types.ProviderPixabay }

type pixabayRendition struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type pixabayResponse struct {
	Hits []struct {
		ID     int64                       `json:"id"`
		Videos map[string]pixabayRendition `json:"videos"`
	} `json:"hits"`
}

// Search implements Provider.
func (p *PixabayClient) Search(ctx context.Context, query string) ([]Hit, error) {
	q := url.Values{}
	q.Set("key", p.apiKey)
	q.Set("q", query+" abstract cinematic")
	q.Set("orientation", "vertical")
	q.Set("per_page", strconv.Itoa(p.perPage))
	q.Set("safesearch", "true")

	var res pixabayResponse
	if err := getJSON(ctx, p.httpClient, p.baseURL+"?"+q.Encode(), nil, &res); err != nil {
		return nil, fmt.Errorf("pixabay search %q: %w", query, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, v := range res.Hits {
		h := Hit{ID: strconv.FormatInt(v.ID, 10)}
		// map order is random; sort by size name for stable output
		names := lo.Keys(v.Videos)
		sort.Strings(names)
		for _, name := range names {
			r := v.Videos[name]
			h.Renditions = append(h.Renditions, Rendition{URL: r.URL, Width: r.Width, Height: r.Height})
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// NewProviders returns every provider that has an API key configured.
func NewProviders(cfg *config.Config) []Provider {
	v := cfg.Visuals
	var out []Provider
	if cfg.Secrets.PexelsAPIKey != "" {
		out = append(out, NewPexelsClient(cfg.Secrets.PexelsAPIKey, v.ResultsPerPage, v.SearchTimeout))
	}
	if cfg.Secrets.PixabayAPIKey != "" {
		out = append(out, NewPixabayClient(cfg.Secrets.PixabayAPIKey, v.ResultsPerPage, v.SearchTimeout))
	}
	return out
}

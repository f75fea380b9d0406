package music

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/beatsync/server/internal/core"
)

// HTTPProvider calls an external music search/stream service over
// plain HTTP. No HTTP client library appears anywhere in the
// reference corpus this project was built against, so this adapter
// is net/http rather than a vendor SDK — see DESIGN.md.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider targets baseURL, authenticating with apiKey via a
// bearer header.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Tracks []core.MusicTrack `json:"tracks"`
}

// Search queries the provider's /search endpoint.
func (p *HTTPProvider) Search(ctx context.Context, query string) ([]core.MusicTrack, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s", p.baseURL, url.QueryEscape(query))
	var out searchResponse
	if err := p.getJSON(ctx, endpoint, &out); err != nil {
		return nil, err
	}
	return out.Tracks, nil
}

type streamResponse struct {
	URL string `json:"url"`
}

// StreamURL queries the provider's /stream endpoint for a playable
// URL for trackID.
func (p *HTTPProvider) StreamURL(ctx context.Context, trackID string) (string, error) {
	endpoint := fmt.Sprintf("%s/stream?trackId=%s", p.baseURL, url.QueryEscape(trackID))
	var out streamResponse
	if err := p.getJSON(ctx, endpoint, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("music provider returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

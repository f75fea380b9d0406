package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/beatsync/server/internal/domain"
)

// HTTPResolver resolves best-effort geo metadata for an IP by calling
// an external lookup service. No geolocation SDK appears anywhere in
// the reference corpus this project was built against, so this
// adapter is net/http rather than a vendor client — see DESIGN.md.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver targets baseURL, a service that accepts
// GET <baseURL>/<ip> and returns JSON geo fields.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type lookupResponse struct {
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country_name"`
	CountryCode string `json:"country_code"`
}

// Resolve strips the port from remoteAddr and looks up its geo
// metadata. Returns nil, nil (not an error) for loopback/private
// addresses or any lookup failure — geo data is cosmetic, never load
// bearing.
func (r *HTTPResolver) Resolve(remoteAddr string) (*domain.Location, error) {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.client.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s", r.baseURL, host), nil)
	if err != nil {
		return nil, nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	var out lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, nil
	}
	return &domain.Location{
		City:        out.City,
		Region:      out.Region,
		Country:     out.Country,
		CountryCode: out.CountryCode,
		FlagSVGURL:  fmt.Sprintf("https://flagcdn.com/%s.svg", strings.ToLower(out.CountryCode)),
	}, nil
}

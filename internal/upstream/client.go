package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/noah-isme/tourney-pipeline/internal/models"
)

// Client is the upstream API surface the fetchers depend on. A nil result with a nil error
// means the upstream confirmed the resource does not exist.
type Client interface {
	GetMatch(ctx context.Context, id int64) (*Match, error)
	GetBeatmap(ctx context.Context, id int64) (*Beatmap, error)
	GetBeatmapset(ctx context.Context, id int64) (*Beatmapset, error)
	GetUser(ctx context.Context, id int64, ruleset models.Ruleset) (*User, error)
}

// StatusError reports an unexpected upstream response code.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.Path, e.Status)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

const matchEventPageSize = 100

// maxMatchPages bounds event pagination for pathological lobbies.
const maxMatchPages = 50

// HTTPClient talks JSON over HTTP to the osu! API v2.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient authenticates with the client credentials grant. Tokens refresh automatically.
func NewHTTPClient(ctx context.Context, cfg Config) *HTTPClient {
	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       []string{"public"},
	}
	httpClient := creds.Client(ctx)
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}
	return NewHTTPClientWith(cfg.BaseURL, httpClient)
}

// NewHTTPClientWith uses a preconfigured http.Client.
func NewHTTPClientWith(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// GetMatch fetches a match and follows event pagination until the latest event.
func (c *HTTPClient) GetMatch(ctx context.Context, id int64) (*Match, error) {
	path := fmt.Sprintf("/matches/%d", id)
	var match Match
	found, err := c.get(ctx, path, url.Values{"limit": {strconv.Itoa(matchEventPageSize)}}, &match)
	if err != nil || !found {
		return nil, err
	}
	for page := 1; page < maxMatchPages; page++ {
		if len(match.Events) == 0 {
			break
		}
		last := match.Events[len(match.Events)-1].ID
		if last >= match.LatestEventID {
			break
		}
		var next Match
		query := url.Values{
			"after": {strconv.FormatInt(last, 10)},
			"limit": {strconv.Itoa(matchEventPageSize)},
		}
		found, err := c.get(ctx, path, query, &next)
		if err != nil {
			return nil, err
		}
		if !found || len(next.Events) == 0 {
			break
		}
		match.Events = append(match.Events, next.Events...)
		match.Users = append(match.Users, next.Users...)
	}
	return &match, nil
}

func (c *HTTPClient) GetBeatmap(ctx context.Context, id int64) (*Beatmap, error) {
	var beatmap Beatmap
	found, err := c.get(ctx, fmt.Sprintf("/beatmaps/%d", id), nil, &beatmap)
	if err != nil || !found {
		return nil, err
	}
	return &beatmap, nil
}

func (c *HTTPClient) GetBeatmapset(ctx context.Context, id int64) (*Beatmapset, error) {
	var set Beatmapset
	found, err := c.get(ctx, fmt.Sprintf("/beatmapsets/%d", id), nil, &set)
	if err != nil || !found {
		return nil, err
	}
	return &set, nil
}

func (c *HTTPClient) GetUser(ctx context.Context, id int64, ruleset models.Ruleset) (*User, error) {
	var user User
	path := fmt.Sprintf("/users/%d/%s", id, ruleset.APIName())
	found, err := c.get(ctx, path, url.Values{"key": {"id"}}, &user)
	if err != nil || !found {
		return nil, err
	}
	return &user, nil
}

// get decodes a JSON response into out. found is false on 404.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, out interface{}) (bool, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return false, &StatusError{Path: path, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode %s: %w", path, err)
	}
	return true, nil
}

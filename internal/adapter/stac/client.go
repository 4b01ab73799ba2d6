// Package stac searches a STAC API (NASA CMR-STAC for HLS) for scenes
// intersecting a bounding box within a time window.
package stac

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/wildfire-water-etl/internal/domain"
	"github.com/couchcryptid/wildfire-water-etl/internal/imagery"
	"github.com/paulmach/orb"
)

const (
	defaultPageSize = 100
	defaultMaxPages = 50
	maxAttempts     = 4
)

// Client implements imagery.SceneCatalog.
type Client struct {
	baseURL    string
	collection string
	http       *http.Client
	logger     *slog.Logger

	PageSize     int
	MaxPages     int
	RetryBackoff time.Duration
}

// NewClient creates a client for the STAC API rooted at baseURL.
func NewClient(baseURL, collection string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		collection:   collection,
		http:         httpClient,
		logger:       logger,
		PageSize:     defaultPageSize,
		MaxPages:     defaultMaxPages,
		RetryBackoff: 500 * time.Millisecond,
	}
}

type searchRequest struct {
	Collections []string  `json:"collections"`
	BBox        []float64 `json:"bbox"`
	Datetime    string    `json:"datetime"`
	Limit       int       `json:"limit"`
}

type itemCollection struct {
	Features []item `json:"features"`
	Links    []link `json:"links"`
}

type item struct {
	ID         string `json:"id"`
	Properties struct {
		Datetime   time.Time `json:"datetime"`
		CloudCover *float64  `json:"eo:cloud_cover"`
	} `json:"properties"`
	Assets map[string]struct {
		Href string `json:"href"`
	} `json:"assets"`
}

type link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Method string          `json:"method"`
	Body   json.RawMessage `json:"body"`
}

// Search implements imagery.SceneCatalog. It follows "next" links until the
// result set is exhausted.
func (c *Client) Search(ctx context.Context, bound orb.Bound, window domain.TimeWindow) ([]imagery.Scene, error) {
	body, err := json.Marshal(searchRequest{
		Collections: []string{c.collection},
		BBox:        []float64{bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y()},
		Datetime:    window.Start.UTC().Format(time.RFC3339) + "/" + window.End.UTC().Format(time.RFC3339),
		Limit:       c.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	var scenes []imagery.Scene
	method, url := http.MethodPost, c.baseURL+"/search"
	for page := 0; ; page++ {
		if page >= c.MaxPages {
			return nil, fmt.Errorf("search exceeded %d pages", c.MaxPages)
		}
		coll, err := c.fetch(ctx, method, url, body)
		if err != nil {
			return nil, err
		}
		for _, it := range coll.Features {
			scenes = append(scenes, toScene(it))
		}

		next, ok := nextLink(coll.Links)
		if !ok || len(coll.Features) == 0 {
			break
		}
		url = next.Href
		method = http.MethodGet
		if strings.EqualFold(next.Method, http.MethodPost) {
			method = http.MethodPost
			if len(next.Body) > 0 {
				body = next.Body
			}
		}
	}

	c.logger.Debug("stac search complete", "collection", c.collection, "scenes", len(scenes), "window", window.String())
	return scenes, nil
}

func (c *Client) fetch(ctx context.Context, method, url string, body []byte) (itemCollection, error) {
	backoff := c.RetryBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		coll, retry, err := c.do(ctx, method, url, body)
		if err == nil {
			return coll, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
		c.logger.Warn("stac request failed, retrying", "error", err, "attempt", attempt, "backoff", backoff)
		if !sleepWithContext(ctx, backoff) {
			break
		}
		backoff = nextBackoff(backoff, 10*time.Second)
	}
	if ctx.Err() != nil && !errors.Is(lastErr, ctx.Err()) {
		return itemCollection{}, fmt.Errorf("%w: %w", ctx.Err(), lastErr)
	}
	return itemCollection{}, lastErr
}

// do performs one request. retry is true for throttling and server errors.
func (c *Client) do(ctx context.Context, method, url string, body []byte) (coll itemCollection, retry bool, err error) {
	var r io.Reader
	if method == http.MethodPost {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, r)
	if err != nil {
		return coll, false, fmt.Errorf("build stac request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	if method == http.MethodPost {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return coll, true, fmt.Errorf("stac request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		retry = resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return coll, retry, fmt.Errorf("stac search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&coll); err != nil {
		return coll, false, fmt.Errorf("decode stac response: %w", err)
	}
	return coll, false, nil
}

func nextLink(links []link) (link, bool) {
	for _, l := range links {
		if l.Rel == "next" && l.Href != "" {
			return l, true
		}
	}
	return link{}, false
}

func toScene(it item) imagery.Scene {
	s := imagery.Scene{
		ID:         it.ID,
		Time:       it.Properties.Datetime,
		CloudCover: -1,
		Assets:     make(map[string]string, len(it.Assets)),
	}
	if it.Properties.CloudCover != nil {
		s.CloudCover = *it.Properties.CloudCover
	}
	for key, a := range it.Assets {
		s.Assets[BandName(key)] = a.Href
	}
	return s
}

// BandName maps an HLS asset key to the band name used in images:
// "B02" becomes "B2", other keys are kept.
func BandName(assetKey string) string {
	if len(assetKey) == 3 && assetKey[0] == 'B' && assetKey[1] == '0' {
		return "B" + assetKey[2:]
	}
	return assetKey
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

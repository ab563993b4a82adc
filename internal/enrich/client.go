package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/storage"
)

// ErrNoMatch is returned when the odds service lists no event for the drop's teams.
var ErrNoMatch = errors.New("enrich: no matching event")

// Result is what enrichment contributes to a drop. It is cached per event identity.
type Result struct {
	CommenceTime *time.Time `json:"commence_time,omitempty"`

	// Links and Titles are keyed by bookmaker key.
	Links  map[string]string `json:"links,omitempty"`
	Titles map[string]string `json:"titles,omitempty"`
}

// Client looks up commence times and bookmaker deep links on an odds API.
type Client struct {
	baseURL    string
	apiKey     string
	regions    string
	httpClient *http.Client
	cache      storage.Cache
	cacheTTL   time.Duration
	limiter    *rate.Limiter
	group      singleflight.Group
	log        *slog.Logger
}

// NewClient returns nil when no base URL is configured.
func NewClient(cfg config.EnricherConfig, cache storage.Cache) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	if cache == nil {
		cache = storage.NewMemoryCache()
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		regions: cfg.Regions,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		cache:    cache,
		cacheTTL: ttl,
		limiter:  rate.NewLimiter(limit, 1),
		log:      slog.Default().With("component", "enricher"),
	}
}

// Enrich returns a copy of d with commence time and deep links filled in.
// It is idempotent and never mutates d.
func (c *Client) Enrich(ctx context.Context, d *models.Drop) (*models.Drop, error) {
	key := "enrich:" + identity(d)

	if data, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("Enrichment cache read failed", "key", key, "error", err)
	} else if ok {
		var res Result
		if err := json.Unmarshal(data, &res); err == nil {
			return apply(d, res), nil
		}
	}

	events, err := c.eventsFor(ctx, sportKey(d))
	if err != nil {
		return nil, err
	}

	var found *event
	for i := range events {
		if sameTeams(d.Home, d.Away, events[i].HomeTeam, events[i].AwayTeam) {
			found = &events[i]
			break
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, d.Match)
	}

	res := found.result()
	if data, err := json.Marshal(res); err == nil {
		if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
			c.log.Warn("Enrichment cache write failed", "key", key, "error", err)
		}
	}
	return apply(d, res), nil
}

// eventsFor collapses concurrent lookups of one sport into a single request.
// The shared request is bounded by the client timeout, not by any caller's
// deadline; each caller stops waiting when its own ctx is done.
func (c *Client) eventsFor(ctx context.Context, sport string) ([]event, error) {
	ch := c.group.DoChan(sport, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.httpClient.Timeout)
		defer cancel()
		return c.fetchEvents(fctx, sport)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]event), nil
	}
}

type event struct {
	ID           string      `json:"id"`
	SportKey     string      `json:"sport_key"`
	CommenceTime time.Time   `json:"commence_time"`
	HomeTeam     string      `json:"home_team"`
	AwayTeam     string      `json:"away_team"`
	Bookmakers   []bookmaker `json:"bookmakers"`
}

type bookmaker struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Link  string `json:"link"`
}

func (e *event) result() Result {
	res := Result{Links: make(map[string]string), Titles: make(map[string]string)}
	if !e.CommenceTime.IsZero() {
		t := e.CommenceTime.UTC()
		res.CommenceTime = &t
	}
	for _, b := range e.Bookmakers {
		if b.Link == "" {
			continue
		}
		res.Links[b.Key] = b.Link
		res.Titles[b.Key] = b.Title
	}
	return res
}

func (c *Client) fetchEvents(ctx context.Context, sport string) ([]event, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(c.baseURL + "/v4/sports/" + url.PathEscape(sport) + "/odds")
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	q := u.Query()
	q.Set("apiKey", c.apiKey)
	if c.regions != "" {
		q.Set("regions", c.regions)
	}
	q.Set("markets", "h2h")
	q.Set("includeLinks", "true")
	q.Set("dateFormat", "iso")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	var events []event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	c.log.Debug("Fetched events", "sport", sport, "count", len(events))
	return events, nil
}

// apply copies d and fills what the result knows about its books.
func apply(d *models.Drop, res Result) *models.Drop {
	out := d.Clone()
	if out.CommenceTime == nil && res.CommenceTime != nil {
		t := *res.CommenceTime
		out.CommenceTime = &t
	}
	for _, o := range d.Outcomes {
		link := linkFor(o.Book, res)
		if link == "" {
			continue
		}
		if out.DeepLinks == nil {
			out.DeepLinks = make(map[string]string)
		}
		out.DeepLinks[o.Book] = link
	}
	return out
}

func linkFor(book string, res Result) string {
	want := bookKey(book)
	if l, ok := res.Links[want]; ok {
		return l
	}
	for key, title := range res.Titles {
		if bookKey(title) == want {
			return res.Links[key]
		}
	}
	return ""
}

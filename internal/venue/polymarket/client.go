// Package polymarket implements the venue.Venue capability against the
// public Polymarket-style data API:
//
//   - GET /markets?city=<city>&event_day=<day>   daily bracket market listings
//   - GET /prices?market_ids=<id,...>            best bid/ask + top-of-book depth
//
// Both endpoints are unauthenticated and read-only. Requests are rate-limited
// via per-category token buckets and retried on transient failures. Duplicate
// market listings are deduplicated by market id (last write wins), and every
// discovered bracket set is validated as a partition before use.
package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"weathertrader/internal/config"
	"weathertrader/internal/venue"
	"weathertrader/pkg/types"
)

// VenueName is the registry tag this implementation answers to.
const VenueName = "polymarket"

// Client is the Polymarket data API client.
type Client struct {
	http   *resty.Client
	rl     *RateLimiter
	logger *slog.Logger
}

var _ venue.Venue = (*Client)(nil)

// NewClient creates a market data client with retry and rate limiting.
func NewClient(cfg config.VenueConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(8 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		http:   httpClient,
		rl:     NewRateLimiter(),
		logger: logger.With("component", "polymarket"),
	}
}

// Name implements venue.Venue.
func (c *Client) Name() string { return VenueName }

// ResolvesOnWholeDegrees implements venue.Venue. Polymarket temperature
// markets settle against whole-degree METAR daily highs.
func (c *Client) ResolvesOnWholeDegrees() bool { return true }

// marketListing is the JSON shape of one market in the discovery response.
type marketListing struct {
	MarketID string `json:"market_id"`
	City     string `json:"city"`
	EventDay string `json:"event_day"`
	Title    string `json:"title"`
	Active   bool   `json:"active"`
}

// priceListing is the JSON shape of one market in the prices response.
type priceListing struct {
	MarketID     string  `json:"market_id"`
	BestBid      float64 `json:"best_bid"`
	BestAsk      float64 `json:"best_ask"`
	AvailableUSD float64 `json:"available_usd"`
}

// ListBrackets implements venue.Venue.
func (c *Client) ListBrackets(ctx context.Context, city, eventDay string) ([]types.Bracket, error) {
	if err := c.rl.Markets.Wait(ctx); err != nil {
		return nil, types.NewCycleError(types.KindCancelled, err)
	}

	var listings []marketListing
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"city":      city,
			"event_day": eventDay,
		}).
		SetResult(&listings).
		Get("/markets")
	if err != nil {
		return nil, types.Errorf(types.KindTransientFetch, "list markets %s/%s: %v", city, eventDay, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode(), "list markets %s/%s", city, eventDay)
	}

	// Dedupe by market id, last write wins within one response.
	byID := make(map[string]marketListing)
	var order []string
	for _, l := range listings {
		if !l.Active {
			continue
		}
		if _, seen := byID[l.MarketID]; !seen {
			order = append(order, l.MarketID)
		}
		byID[l.MarketID] = l
	}

	brackets := make([]types.Bracket, 0, len(byID))
	for _, id := range order {
		l := byID[id]
		b, ok := parseBracketName(l.MarketID, l.Title)
		if !ok {
			c.logger.Warn("unparseable bracket title", "market_id", l.MarketID, "title", l.Title)
			continue
		}
		brackets = append(brackets, b)
	}

	// No listings is a routine quiet skip, not a broken partition; the
	// sentinel carries no taxonomy kind.
	if len(brackets) == 0 {
		return nil, fmt.Errorf("%w for %s/%s", venue.ErrNoMarkets, city, eventDay)
	}
	if err := types.ValidateBracketSet(brackets); err != nil {
		return nil, err
	}
	types.SortBrackets(brackets)

	c.logger.Debug("brackets discovered", "city", city, "event_day", eventDay, "count", len(brackets))
	return brackets, nil
}

// Prices implements venue.Venue.
func (c *Client) Prices(ctx context.Context, marketIDs []string) (map[string]types.BracketPrice, error) {
	if len(marketIDs) == 0 {
		return map[string]types.BracketPrice{}, nil
	}
	if err := c.rl.Prices.Wait(ctx); err != nil {
		return nil, types.NewCycleError(types.KindCancelled, err)
	}

	var listings []priceListing
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("market_ids", strings.Join(marketIDs, ",")).
		SetResult(&listings).
		Get("/prices")
	if err != nil {
		return nil, types.Errorf(types.KindTransientFetch, "fetch prices: %v", err)
	}
	fetchedAt := time.Now().UTC()
	if resp.StatusCode() != http.StatusOK {
		return nil, classifyStatus(resp.StatusCode(), "fetch prices")
	}

	out := make(map[string]types.BracketPrice, len(listings))
	for _, l := range listings {
		if l.BestBid < 0 || l.BestAsk < 0 || l.BestBid > 1 || l.BestAsk > 1 {
			return nil, types.Errorf(types.KindInvalidResponse,
				"market %s quote out of range: bid=%v ask=%v", l.MarketID, l.BestBid, l.BestAsk)
		}
		out[l.MarketID] = types.BracketPrice{
			MarketID:     l.MarketID,
			MidProb:      (l.BestBid + l.BestAsk) / 2,
			BestBid:      l.BestBid,
			BestAsk:      l.BestAsk,
			AvailableUSD: l.AvailableUSD,
			FetchedAt:    fetchedAt,
		}
	}
	return out, nil
}

func classifyStatus(status int, format string, args ...any) error {
	prefix := append(args, status)
	if status >= 500 || status == http.StatusTooManyRequests {
		return types.Errorf(types.KindTransientFetch, format+": status %d", prefix...)
	}
	return types.Errorf(types.KindInvalidResponse, format+": status %d", prefix...)
}

package news

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

// DefaultCalendarURL is the ForexFactory weekly calendar feed.
const DefaultCalendarURL = "https://nfs.faireconomy.media/ff_calendar_thisweek.json"

const (
	fetchTimeout  = 10 * time.Second
	cacheTTL      = 5 * time.Minute
	prefilterSpan = 24 * time.Hour
	postEventHold = 15 * time.Minute
)

// calendarEvent is the feed's wire shape.
type calendarEvent struct {
	Title    string `json:"title"`
	Country  string `json:"country"`
	Date     string `json:"date"`
	Impact   string `json:"impact"`
	Forecast string `json:"forecast"`
	Previous string `json:"previous"`
}

// ForexFactoryCalendar reports high impact calendar events near a symbol's
// currencies. Fetches are cached for five minutes; a failed refresh serves
// the stale cache.
type ForexFactoryCalendar struct {
	url    string
	client *http.Client
	clock  domain.Clock
	logger *zap.Logger

	mu      sync.Mutex
	cache   []calendarEvent
	expires time.Time
}

// NewForexFactoryCalendar builds a calendar on the given feed URL. An empty
// URL selects the public ForexFactory feed, a nil clock the wall clock.
func NewForexFactoryCalendar(url string, clock domain.Clock, logger *zap.Logger) *ForexFactoryCalendar {
	if url == "" {
		url = DefaultCalendarURL
	}
	if clock == nil {
		clock = time.Now
	}
	return &ForexFactoryCalendar{
		url:    url,
		client: &http.Client{Timeout: fetchTimeout},
		clock:  clock,
		logger: logger,
	}
}

// CheckStop reports whether a high impact event for the symbol's base or
// quote currency (or USD) is inside the blocking window: bufferMinutes
// ahead of the event, or 15 minutes after it.
func (c *ForexFactoryCalendar) CheckStop(ctx context.Context, symbol string, bufferMinutes int) (*domain.NewsVerdict, error) {
	events, err := c.fetchEvents(ctx)
	if err != nil {
		return nil, err
	}

	now := c.clock()
	buffer := time.Duration(bufferMinutes) * time.Minute

	base := ""
	if len(symbol) >= 3 {
		base = strings.ToUpper(symbol[:3])
	}
	quote := ""
	if len(symbol) >= 6 {
		quote = strings.ToUpper(symbol[3:6])
	}

	var blocking []domain.NewsEvent
	for _, event := range events {
		if event.Impact != "High" {
			continue
		}
		if event.Country != base && event.Country != quote && event.Country != "USD" {
			continue
		}

		eventTime, err := time.Parse(time.RFC3339, event.Date)
		if err != nil {
			continue
		}

		diff := eventTime.Sub(now)
		if (diff > 0 && diff <= buffer) || (diff >= -postEventHold && diff <= 0) {
			blocking = append(blocking, domain.NewsEvent{
				Title:   event.Title,
				Country: event.Country,
				Date:    event.Date,
				Impact:  event.Impact,
			})
		}
	}

	if len(blocking) > 0 {
		return &domain.NewsVerdict{
			Stop:   true,
			Reason: "High Impact: " + blocking[0].Title,
			Events: blocking,
		}, nil
	}
	return &domain.NewsVerdict{}, nil
}

// Upcoming lists the cached near-term events, at most count.
func (c *ForexFactoryCalendar) Upcoming(ctx context.Context, count int) ([]domain.NewsEvent, error) {
	events, err := c.fetchEvents(ctx)
	if err != nil {
		return nil, err
	}
	if count > len(events) {
		count = len(events)
	}

	out := make([]domain.NewsEvent, 0, count)
	for _, e := range events[:count] {
		out = append(out, domain.NewsEvent{
			Title:   e.Title,
			Country: e.Country,
			Date:    e.Date,
			Impact:  e.Impact,
		})
	}
	return out, nil
}

// fetchEvents returns the cached window when fresh, otherwise refreshes it.
// Events further than 24 hours out in either direction are dropped at fetch
// time, the blocking window math never needs them.
func (c *ForexFactoryCalendar) fetchEvents(ctx context.Context) ([]calendarEvent, error) {
	c.mu.Lock()
	if len(c.cache) > 0 && c.clock().Before(c.expires) {
		events := c.cache
		c.mu.Unlock()
		return events, nil
	}
	c.mu.Unlock()

	fetched, err := c.fetch(ctx)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(c.cache) > 0 {
			c.logger.Warn("calendar refresh failed, serving stale cache", zap.Error(err))
			return c.cache, nil
		}
		return nil, err
	}

	now := c.clock()
	filtered := make([]calendarEvent, 0, len(fetched))
	for _, e := range fetched {
		eventTime, err := time.Parse(time.RFC3339, e.Date)
		if err != nil {
			continue
		}
		diff := eventTime.Sub(now)
		if diff < 0 {
			diff = -diff
		}
		if diff < prefilterSpan {
			filtered = append(filtered, e)
		}
	}

	c.mu.Lock()
	c.cache = filtered
	c.expires = now.Add(cacheTTL)
	c.mu.Unlock()

	c.logger.Info("calendar refreshed", zap.Int("events", len(filtered)))
	return filtered, nil
}

func (c *ForexFactoryCalendar) fetch(ctx context.Context) ([]calendarEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar status %d: %s", resp.StatusCode, string(body))
	}

	var events []calendarEvent
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("calendar decode: %w", err)
	}
	return events, nil
}

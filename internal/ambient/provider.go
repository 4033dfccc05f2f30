package ambient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/citypulse/citypulse/internal/domain"
)

// Provider fetches the four ambient signals for a city over HTTP. Each
// signal fails independently: an unreachable provider leaves its signal
// unavailable in the sample and never blocks the others.
type Provider struct {
	weatherURL string
	trafficURL string
	eventsURL  string
	newsURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Endpoints holds the base URLs of the third-party signal providers. Empty
// URLs disable the corresponding signal.
type Endpoints struct {
	Weather string
	Traffic string
	Events  string
	News    string
}

// NewProvider creates an ambient signal provider.
func NewProvider(endpoints Endpoints, logger *slog.Logger) *Provider {
	return &Provider{
		weatherURL: endpoints.Weather,
		trafficURL: endpoints.Traffic,
		eventsURL:  endpoints.Events,
		newsURL:    endpoints.News,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

type weatherResponse struct {
	City      string  `json:"city"`
	Condition string  `json:"condition"`
	TempC     float64 `json:"tempC"`
}

type trafficResponse struct {
	Level string `json:"level"`
}

type eventsResponse struct {
	Events []struct {
		Title string `json:"title"`
	} `json:"events"`
}

type newsResponse struct {
	Articles []struct {
		Headline string `json:"headline"`
	} `json:"articles"`
}

// Sample fetches all four signals concurrently and returns once every fetch
// has settled. The caller's token and city are echoed on the sample so a
// result that outlives its triggering scope can be recognized and discarded.
func (p *Provider) Sample(ctx context.Context, token, city string) domain.AmbientSample {
	sample := domain.AmbientSample{Token: token, City: city}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		var resp weatherResponse
		if err := p.get(ctx, p.weatherURL, city, &resp); err != nil {
			p.logger.Warn("weather signal unavailable", "city", city, "error", err)
			return
		}
		sample.Weather = domain.WeatherSignal{
			Available: true,
			City:      resp.City,
			Condition: resp.Condition,
			TempC:     resp.TempC,
		}
	}()

	go func() {
		defer wg.Done()
		var resp trafficResponse
		if err := p.get(ctx, p.trafficURL, city, &resp); err != nil {
			p.logger.Warn("traffic signal unavailable", "city", city, "error", err)
			return
		}
		sample.Traffic = domain.TrafficSignal{Available: true, Level: resp.Level}
	}()

	go func() {
		defer wg.Done()
		var resp eventsResponse
		if err := p.get(ctx, p.eventsURL, city, &resp); err != nil {
			p.logger.Warn("events signal unavailable", "city", city, "error", err)
			return
		}
		titles := make([]string, 0, len(resp.Events))
		for _, ev := range resp.Events {
			titles = append(titles, ev.Title)
		}
		sample.Events = domain.EventsSignal{Available: true, Count: len(titles), Titles: titles}
	}()

	go func() {
		defer wg.Done()
		var resp newsResponse
		if err := p.get(ctx, p.newsURL, city, &resp); err != nil {
			p.logger.Warn("news signal unavailable", "city", city, "error", err)
			return
		}
		headlines := make([]string, 0, len(resp.Articles))
		for _, a := range resp.Articles {
			headlines = append(headlines, a.Headline)
		}
		sample.News = domain.NewsSignal{Available: true, Count: len(headlines), Headlines: headlines}
	}()

	wg.Wait()
	return sample
}

func (p *Provider) get(ctx context.Context, baseURL, city string, result any) error {
	if baseURL == "" {
		return fmt.Errorf("provider not configured")
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return fmt.Errorf("parse provider url: %w", err)
	}
	q := u.Query()
	q.Set("city", city)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("provider error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

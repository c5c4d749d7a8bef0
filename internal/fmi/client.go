package fmi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"weekcast/internal/weather"
)

const forecastQuery = "fmi::forecast::edited::weather::scandinavia::point::timevaluepair"

var ErrCircuitOpen = errors.New("fmi circuit breaker open")

type Client struct {
	baseURL    string
	httpClient *http.Client
	circuit    *gobreaker.CircuitBreaker
	now        func() time.Time
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		circuit: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "fmi",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     2 * time.Minute,
		}),
		now: time.Now,
	}
}

// FetchDailyWeather returns one slot per day of the current window for
// wctx. Days the forecast does not cover are nil.
func (c *Client) FetchDailyWeather(ctx context.Context, wctx weather.Context) ([]*weather.DayWeather, error) {
	window := weather.GenerateWindow(c.now(), wctx.Timezone)
	start := time.Unix(window[0], 0).UTC()
	end := time.Unix(window[len(window)-1]+weather.SecondsPerDay, 0).UTC().Add(-time.Hour)

	params := url.Values{
		"service":        {"WFS"},
		"version":        {"2.0.0"},
		"request":        {"getFeature"},
		"storedquery_id": {forecastQuery},
		"latlon":         {fmt.Sprintf("%f,%f", wctx.Location.Latitude, wctx.Location.Longitude)},
		"timestep":       {"60"},
		"starttime":      {start.Format(time.RFC3339)},
		"endtime":        {end.Format(time.RFC3339)},
	}

	data, err := c.fetch(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	return ParseDailyForecast(data, wctx.Timezone, window)
}

func (c *Client) fetch(ctx context.Context, params url.Values) ([]byte, error) {
	body, err := c.circuit.Execute(func() (interface{}, error) {
		return c.get(ctx, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return body.([]byte), nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("FMI returned %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}

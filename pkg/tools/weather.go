package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/comigor/toolhop/internal/config"
)

// WeatherClient is a client for the wttr.in JSON API
type WeatherClient struct {
	baseURL string
	client  *http.Client
}

// NewWeatherClient creates a new WeatherClient
func NewWeatherClient(cfg config.WeatherConfig) *WeatherClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	return &WeatherClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type wttrResponse struct {
	CurrentCondition []struct {
		TempC       string `json:"temp_C"`
		FeelsLikeC  string `json:"FeelsLikeC"`
		Humidity    string `json:"humidity"`
		WindKmph    string `json:"windspeedKmph"`
		WeatherDesc []struct {
			Value string `json:"value"`
		} `json:"weatherDesc"`
	} `json:"current_condition"`
}

// Current returns a one-line summary of the current weather in city.
func (c *WeatherClient) Current(ctx context.Context, city string) (string, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return "", fmt.Errorf("city is empty")
	}
	u := fmt.Sprintf("%s/%s?format=j1&m&lang=en", c.baseURL, url.PathEscape(city))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch weather for %s: %w", city, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch weather for %s: unexpected status code: %d", city, resp.StatusCode)
	}

	var data wttrResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("decode weather for %s: %w", city, err)
	}
	if len(data.CurrentCondition) == 0 {
		return "", fmt.Errorf("no current conditions for %s", city)
	}
	cur := data.CurrentCondition[0]
	condition := "N/A"
	if len(cur.WeatherDesc) > 0 {
		condition = cur.WeatherDesc[0].Value
	}

	return fmt.Sprintf("Weather in %s: %s°C, %s, Humidity: %s%%, Wind: %s km/h, Feels like: %s°C",
		city, orNA(cur.TempC), condition, orNA(cur.Humidity), orNA(cur.WindKmph), orNA(cur.FeelsLikeC)), nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

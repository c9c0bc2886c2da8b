package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
)

const (
	BaseURL = "https://api.open-meteo.com/v1/forecast"
)

// Client is an Open-Meteo forecast client. No API key is needed.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new weather client
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 8 * time.Second,
		},
	}
}

type forecastResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		Temperature   []*float64 `json:"temperature_2m"`
		Precipitation []*float64 `json:"precipitation_probability"`
		WeatherCode   []*int     `json:"weather_code"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
	} `json:"hourly"`
}

// HourlyForecast returns the forecast for the hour closest to date+hour
// at the given coordinates. tz labels the API's hourly slots.
func (c *Client) HourlyForecast(ctx context.Context, lat, lon float64, tz *time.Location, date time.Time, hour int) (*domain.Forecast, error) {
	day := date.Format("2006-01-02")
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("hourly", "temperature_2m,precipitation_probability,weather_code,wind_speed_10m")
	q.Set("timezone", tz.String())
	q.Set("start_date", day)
	q.Set("end_date", day)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var data forecastResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("unmarshal forecast: %w", err)
	}

	h := data.Hourly
	if len(h.Time) == 0 {
		return nil, fmt.Errorf("no hourly data for %s: %w", day, domain.ErrUnavailable)
	}

	target := time.Date(date.Year(), date.Month(), date.Day(), hour, 0, 0, 0, tz)
	best, bestDiff := -1, math.MaxFloat64
	for i, ts := range h.Time {
		t, err := time.ParseInLocation("2006-01-02T15:04", ts, tz)
		if err != nil {
			continue
		}
		if diff := math.Abs(t.Sub(target).Seconds()); diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best < 0 || best >= len(h.Temperature) || h.Temperature[best] == nil {
		return nil, fmt.Errorf("no temperature for %s: %w", day, domain.ErrUnavailable)
	}

	f := &domain.Forecast{
		Date:         target,
		Location:     fmt.Sprintf("%.3f,%.3f", lat, lon),
		TemperatureC: *h.Temperature[best],
		WeatherCode:  -1,
	}
	if best < len(h.Precipitation) && h.Precipitation[best] != nil {
		f.PrecipitationProbability = int(math.Round(*h.Precipitation[best]))
	}
	if best < len(h.WindSpeed) && h.WindSpeed[best] != nil {
		f.WindSpeedKmh = *h.WindSpeed[best]
	}
	if best < len(h.WeatherCode) && h.WeatherCode[best] != nil {
		f.WeatherCode = *h.WeatherCode[best]
	}
	f.Condition = Describe(f.WeatherCode)

	return f, nil
}

var wmoDescriptions = map[int]string{
	0:  "clear",
	1:  "mainly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "foggy",
	48: "foggy",
	51: "light drizzle",
	53: "drizzle",
	55: "heavy drizzle",
	61: "light rain",
	63: "rain",
	65: "heavy rain",
	71: "light snow",
	73: "snow",
	75: "heavy snow",
	80: "rain showers",
	81: "rain showers",
	82: "heavy showers",
	95: "thunderstorm",
}

// Describe converts a WMO weather code to a condition label
func Describe(code int) string {
	if d, ok := wmoDescriptions[code]; ok {
		return d
	}
	return "unknown"
}

package service

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tazhate/rungroup/internal/clients/strava"
	"github.com/tazhate/rungroup/internal/domain"
)

// WeatherSource returns the forecast for one hour at a location
type WeatherSource interface {
	HourlyForecast(ctx context.Context, lat, lon float64, tz *time.Location, date time.Time, hour int) (*domain.Forecast, error)
}

// RouteSource returns distance and elevation for a fitness-tracker route
type RouteSource interface {
	RouteStats(ctx context.Context, id string) (*domain.RouteStats, error)
}

// stravaSource builds a Strava client from the stored token on each call
type stravaSource struct {
	auth    HTTPClientSource
	baseURL string
}

// NewStravaSource returns a RouteSource authorized by the stored Strava token
func NewStravaSource(auth HTTPClientSource, baseURL string) RouteSource {
	return &stravaSource{auth: auth, baseURL: baseURL}
}

func (s *stravaSource) RouteStats(ctx context.Context, id string) (*domain.RouteStats, error) {
	hc, err := s.auth.HTTPClient(ctx, domain.ProviderStrava)
	if err != nil {
		return nil, err
	}
	c := strava.NewClient(hc)
	if s.baseURL != "" {
		c.SetBaseURL(s.baseURL)
	}
	return c.RouteStats(ctx, id)
}

// EnrichmentService looks up optional weather and route data.
// Every failure degrades to nil; nothing here returns an error.
type EnrichmentService struct {
	weather WeatherSource
	routes  RouteSource
}

func NewEnrichmentService(weather WeatherSource, routes RouteSource) *EnrichmentService {
	return &EnrichmentService{weather: weather, routes: routes}
}

// Forecast returns the forecast at the run hour, or nil when unavailable
func (s *EnrichmentService) Forecast(ctx context.Context, cfg *domain.GroupConfig, date time.Time, hour int) *domain.Forecast {
	if s.weather == nil || !cfg.Integrations.Weather {
		return nil
	}
	f, err := s.weather.HourlyForecast(ctx, cfg.Group.Latitude, cfg.Group.Longitude, cfg.Location(), date, hour)
	if err != nil {
		log.Printf("Weather unavailable for %s: %v", date.Format("2006-01-02"), err)
		return nil
	}
	return f
}

// Route returns route stats, or nil when unavailable
func (s *EnrichmentService) Route(ctx context.Context, cfg *domain.GroupConfig, stravaID string) *domain.RouteStats {
	if s.routes == nil || stravaID == "" || !cfg.Integrations.Strava {
		return nil
	}
	stats, err := s.routes.RouteStats(ctx, stravaID)
	if err != nil {
		log.Printf("Route %s unavailable: %v", stravaID, err)
		return nil
	}
	return stats
}

// EnrichEntry runs the weather lookup and every route lookup concurrently.
// Each goroutine writes only its own slot of the result.
func (s *EnrichmentService) EnrichEntry(ctx context.Context, cfg *domain.GroupConfig, entry *domain.ScheduleEntry) *domain.Enrichment {
	enr := &domain.Enrichment{Routes: make([]*domain.RouteStats, len(entry.Routes))}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		enr.Forecast = s.Forecast(ctx, cfg, entry.Date, startHour(entry.StartTime))
	}()

	for i := range entry.Routes {
		id := entry.Routes[i].StravaID
		if id == "" {
			continue
		}
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			enr.Routes[i] = s.Route(ctx, cfg, id)
		}(i, id)
	}

	wg.Wait()
	return enr
}

// startHour returns the hour of an "HH:MM" start time, 19 if unparsable
func startHour(hhmm string) int {
	h, _, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		h = strings.TrimSpace(hhmm)
	}
	n, err := strconv.Atoi(h)
	if err != nil || n < 0 || n > 23 {
		return 19
	}
	return n
}

var wetWords = []string{"rain", "drizzle", "shower", "snow", "sleet", "thunder"}

// ClassifyWeather picks the category that drives the intro text
func ClassifyWeather(f *domain.Forecast, m domain.MessageSettings) domain.WeatherCategory {
	if f == nil {
		return domain.WeatherGeneric
	}

	desc := strings.ToLower(f.Condition)
	if f.PrecipitationProbability > 50 {
		return domain.WeatherWet
	}
	for _, w := range wetWords {
		if strings.Contains(desc, w) {
			return domain.WeatherWet
		}
	}

	if f.TemperatureC <= m.ColdThresholdC {
		return domain.WeatherCold
	}
	if f.TemperatureC >= m.HotThresholdC {
		return domain.WeatherHot
	}

	if f.WindSpeedKmh > 30 {
		return domain.WeatherWindy
	}

	if strings.Contains(desc, "clear") || strings.Contains(desc, "sunny") {
		return domain.WeatherNice
	}
	return domain.WeatherGeneric
}

// WeatherAdvice returns the cold or hot note when the forecast calls for
// one, otherwise ""
func WeatherAdvice(f *domain.Forecast, m domain.MessageSettings) string {
	if f == nil {
		return ""
	}
	if f.TemperatureC <= m.ColdThresholdC {
		return m.ColdWeatherNote
	}
	if f.TemperatureC >= m.HotThresholdC {
		return m.HotWeatherNote
	}
	return ""
}

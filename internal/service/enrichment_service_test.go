package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
)

type fakeWeather struct {
	forecast *domain.Forecast
	err      error
	hour     int
}

func (f *fakeWeather) HourlyForecast(ctx context.Context, lat, lon float64, tz *time.Location, date time.Time, hour int) (*domain.Forecast, error) {
	f.hour = hour
	return f.forecast, f.err
}

type fakeRoutes struct {
	mu    sync.Mutex
	stats map[string]*domain.RouteStats
	calls []string
}

func (f *fakeRoutes) RouteStats(ctx context.Context, id string) (*domain.RouteStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	if s, ok := f.stats[id]; ok {
		return s, nil
	}
	return nil, domain.ErrUnavailable
}

func TestEnrichEntry(t *testing.T) {
	weather := &fakeWeather{forecast: &domain.Forecast{Condition: "overcast", TemperatureC: 12}}
	routes := &fakeRoutes{stats: map[string]*domain.RouteStats{"1": {DistanceKm: 5, ElevationM: 20}}}
	svc := NewEnrichmentService(weather, routes)

	entry := riversideEntry()
	entry.StartTime = "18:30"
	entry.Routes = []domain.Route{
		domain.NewRoute("A", "https://www.strava.com/routes/1", nil),
		domain.NewRoute("B", "", nil),
		domain.NewRoute("C", "https://www.strava.com/routes/2", nil),
	}

	enr := svc.EnrichEntry(context.Background(), domain.DefaultGroupConfig(), &entry)
	if enr.Forecast == nil || enr.Forecast.Condition != "overcast" || weather.hour != 18 {
		t.Errorf("forecast = %+v, hour %d", enr.Forecast, weather.hour)
	}
	if len(enr.Routes) != 3 {
		t.Fatalf("route slots = %d", len(enr.Routes))
	}
	if enr.Routes[0] == nil || enr.Routes[0].DistanceKm != 5 {
		t.Errorf("slot 0 = %+v", enr.Routes[0])
	}
	if enr.Routes[1] != nil || enr.Routes[2] != nil {
		t.Errorf("unavailable slots should be nil: %+v", enr.Routes)
	}
	if len(routes.calls) != 2 {
		t.Errorf("route lookups = %v, want only routes with an id", routes.calls)
	}
}

func TestEnrichmentDegradesToNil(t *testing.T) {
	svc := NewEnrichmentService(&fakeWeather{err: errors.New("timeout")}, &fakeRoutes{})
	cfg := domain.DefaultGroupConfig()

	if f := svc.Forecast(context.Background(), cfg, time.Now(), 19); f != nil {
		t.Errorf("forecast = %+v", f)
	}
	if r := svc.Route(context.Background(), cfg, "99"); r != nil {
		t.Errorf("route = %+v", r)
	}

	none := NewEnrichmentService(nil, nil)
	entry := riversideEntry()
	enr := none.EnrichEntry(context.Background(), cfg, &entry)
	if enr.Forecast != nil || enr.RouteStatsAt(0) != nil {
		t.Errorf("enrichment without sources = %+v", enr)
	}
}

func TestEnrichmentRespectsToggles(t *testing.T) {
	weather := &fakeWeather{forecast: &domain.Forecast{Condition: "clear"}}
	routes := &fakeRoutes{stats: map[string]*domain.RouteStats{"1": {DistanceKm: 5}}}
	svc := NewEnrichmentService(weather, routes)

	cfg := domain.DefaultGroupConfig()
	cfg.Integrations.Weather = false
	cfg.Integrations.Strava = false

	if svc.Forecast(context.Background(), cfg, time.Now(), 19) != nil {
		t.Error("weather disabled but forecast returned")
	}
	if svc.Route(context.Background(), cfg, "1") != nil || len(routes.calls) != 0 {
		t.Error("strava disabled but route looked up")
	}
}

func TestClassifyWeather(t *testing.T) {
	m := domain.DefaultGroupConfig().Messages

	tests := []struct {
		name string
		f    *domain.Forecast
		want domain.WeatherCategory
	}{
		{"missing", nil, domain.WeatherGeneric},
		{"rain chance", &domain.Forecast{Condition: "overcast", TemperatureC: 12, PrecipitationProbability: 70}, domain.WeatherWet},
		{"drizzle", &domain.Forecast{Condition: "light drizzle", TemperatureC: 12}, domain.WeatherWet},
		{"cold", &domain.Forecast{Condition: "clear", TemperatureC: 2}, domain.WeatherCold},
		{"hot", &domain.Forecast{Condition: "clear", TemperatureC: 27}, domain.WeatherHot},
		{"windy", &domain.Forecast{Condition: "overcast", TemperatureC: 12, WindSpeedKmh: 45}, domain.WeatherWindy},
		{"nice", &domain.Forecast{Condition: "mainly clear", TemperatureC: 15}, domain.WeatherNice},
		{"plain", &domain.Forecast{Condition: "overcast", TemperatureC: 12}, domain.WeatherGeneric},
	}
	for _, tt := range tests {
		if got := ClassifyWeather(tt.f, m); got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.name, got, tt.want)
		}
	}

	if WeatherAdvice(&domain.Forecast{TemperatureC: 3}, m) != m.ColdWeatherNote {
		t.Error("cold advice missing")
	}
	if WeatherAdvice(&domain.Forecast{TemperatureC: 25}, m) != m.HotWeatherNote {
		t.Error("hot advice missing")
	}
	if WeatherAdvice(&domain.Forecast{TemperatureC: 14}, m) != "" || WeatherAdvice(nil, m) != "" {
		t.Error("mild or missing forecast should carry no advice")
	}
}

package domain

import "time"

// WeatherCategory drives the choice of weather advice
type WeatherCategory string

const (
	WeatherGeneric WeatherCategory = "generic"
	WeatherNice    WeatherCategory = "nice"
	WeatherWet     WeatherCategory = "wet"
	WeatherCold    WeatherCategory = "cold"
	WeatherHot     WeatherCategory = "hot"
	WeatherWindy   WeatherCategory = "windy"
)

// Forecast is the weather at run time. A nil *Forecast means unavailable.
type Forecast struct {
	Date                     time.Time
	Location                 string
	Condition                string
	TemperatureC             float64
	PrecipitationProbability int
	WindSpeedKmh             float64
	WeatherCode              int
}

// Enrichment bundles the optional data merged into a message
type Enrichment struct {
	Forecast *Forecast
	// Routes is indexed like ScheduleEntry.Routes; nil slots are unavailable.
	Routes []*RouteStats
}

// RouteStatsAt returns the enrichment for route i, or nil
func (e *Enrichment) RouteStatsAt(i int) *RouteStats {
	if e == nil || i < 0 || i >= len(e.Routes) {
		return nil
	}
	return e.Routes[i]
}

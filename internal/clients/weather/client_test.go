package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tazhate/rungroup/internal/domain"
)

const sampleForecast = `{
  "hourly": {
    "time": ["2024-06-01T17:00", "2024-06-01T18:00", "2024-06-01T19:00", "2024-06-01T20:00"],
    "temperature_2m": [15.1, 14.2, 13.4, 12.0],
    "precipitation_probability": [10, 20, 65, null],
    "weather_code": [1, 2, 61, 3],
    "wind_speed_10m": [11.5, 12.0, 14.3, 9.0]
  }
}`

func TestHourlyForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("start_date") != "2024-06-01" || q.Get("end_date") != "2024-06-01" {
			t.Errorf("date range = %s..%s", q.Get("start_date"), q.Get("end_date"))
		}
		if q.Get("timezone") != "Europe/London" {
			t.Errorf("timezone = %s", q.Get("timezone"))
		}
		w.Write([]byte(sampleForecast))
	}))
	defer srv.Close()

	tz, _ := time.LoadLocation("Europe/London")
	c := NewClient(srv.URL)
	f, err := c.HourlyForecast(context.Background(), 53.5, -2.3, tz, time.Date(2024, 6, 1, 0, 0, 0, 0, tz), 19)
	if err != nil {
		t.Fatalf("HourlyForecast: %v", err)
	}

	if f.TemperatureC != 13.4 {
		t.Errorf("temperature = %v, want 13.4", f.TemperatureC)
	}
	if f.PrecipitationProbability != 65 {
		t.Errorf("precipitation = %v, want 65", f.PrecipitationProbability)
	}
	if f.Condition != "light rain" {
		t.Errorf("condition = %q", f.Condition)
	}
	if f.Date.Hour() != 19 {
		t.Errorf("forecast hour = %d", f.Date.Hour())
	}
}

func TestHourlyForecastEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"hourly": {"time": []}}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).HourlyForecast(context.Background(), 0, 0, time.UTC, time.Now(), 19)
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestDescribe(t *testing.T) {
	if Describe(0) != "clear" || Describe(95) != "thunderstorm" || Describe(-1) != "unknown" {
		t.Error("unexpected WMO descriptions")
	}
}

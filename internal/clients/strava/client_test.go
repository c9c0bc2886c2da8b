package strava

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouteStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/routes/123":
			w.Write([]byte(`{"id": 123, "name": "Riverside", "distance": 5012.4, "elevation_gain": 42.0, "type": 2}`))
		case "/routes/0":
			w.Write([]byte(`{"id": 0, "distance": 0}`))
		default:
			http.Error(w, `{"message":"Record Not Found"}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client())
	c.SetBaseURL(srv.URL)

	stats, err := c.RouteStats(context.Background(), "123")
	if err != nil {
		t.Fatalf("RouteStats: %v", err)
	}
	if stats.DistanceKm < 5.01 || stats.DistanceKm > 5.02 {
		t.Errorf("distance = %v km", stats.DistanceKm)
	}
	if stats.ElevationM != 42 {
		t.Errorf("elevation = %v", stats.ElevationM)
	}

	if _, err := c.RouteStats(context.Background(), "0"); err == nil {
		t.Error("expected error for route without distance")
	}
	if _, err := c.RouteStats(context.Background(), "999"); err == nil {
		t.Error("expected error for missing route")
	}
}

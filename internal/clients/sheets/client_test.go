package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/d/abc123/gviz/tq" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("sheet"); got != "Run Schedule" {
			t.Errorf("sheet = %q", got)
		}
		if got := r.URL.Query().Get("tqx"); got != "out:csv" {
			t.Errorf("tqx = %q", got)
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Write([]byte("\"Date\",\"Route\"\n\"2024-06-01\",\"Riverside 5K\"\n\"2024-06-08\"\n"))
	}))
	defer srv.Close()

	c := NewClient(nil)
	c.SetBaseURL(srv.URL + "/d/")

	rows, err := c.FetchRows(context.Background(), "abc123", "Run Schedule")
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[1][1] != "Riverside 5K" {
		t.Errorf("rows[1] = %v", rows[1])
	}
	if len(rows[2]) != 1 {
		t.Errorf("short row = %v", rows[2])
	}
}

func TestFetchRowsErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusNotFound)
		}},
		{"private sheet", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html>sign in</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewClient(nil)
			c.SetBaseURL(srv.URL + "/")
			if _, err := c.FetchRows(context.Background(), "abc", "Schedule"); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := NewClient(nil).FetchRows(context.Background(), "", "Schedule"); err == nil {
		t.Fatal("expected error for empty spreadsheet id")
	}
}

func TestExtractSpreadsheetID(t *testing.T) {
	tests := map[string]string{
		"https://docs.google.com/spreadsheets/d/1AbC-xyz/edit#gid=0": "1AbC-xyz",
		"  1AbC-xyz ": "1AbC-xyz",
	}
	for in, want := range tests {
		if got := ExtractSpreadsheetID(in); got != want {
			t.Errorf("ExtractSpreadsheetID(%q) = %q, want %q", in, got, want)
		}
	}
}

package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tazhate/rungroup/internal/domain"
)

func TestSettingsDefaultsBeforeSetup(t *testing.T) {
	svc := NewSettingsService(newTestStorage(t))

	configured, err := svc.IsConfigured()
	if err != nil || configured {
		t.Fatalf("IsConfigured = %v, %v", configured, err)
	}
	cfg, err := svc.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Group.Name != "My Running Group" || len(cfg.Messages.Greetings) != 4 {
		t.Errorf("defaults = %+v", cfg.Group)
	}
}

func TestSettingsSaveLoad(t *testing.T) {
	s := newTestStorage(t)
	svc := NewSettingsService(s)

	cfg, _ := svc.Load()
	cfg.Group.Name = "Harbour Runners"
	cfg.Group.ShortName = ""
	cfg.Group.RunDays = []domain.Weekday{domain.WeekdayTuesday, domain.WeekdayThursday}
	cfg.Messages.Greetings = []string{"Ahoy!"}
	if err := svc.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Mutating the loaded copy must not leak into the cache
	cfg.Group.Name = "changed"

	got, err := NewSettingsService(s).Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.Group.Name != "Harbour Runners" || got.Group.ShortName != "HR" {
		t.Errorf("group = %+v", got.Group)
	}
	if len(got.Group.RunDays) != 2 || got.Messages.Greetings[0] != "Ahoy!" {
		t.Errorf("lists not persisted: %+v", got)
	}

	cached, _ := svc.Load()
	if cached.Group.Name != "Harbour Runners" {
		t.Errorf("cache mutated through returned copy: %q", cached.Group.Name)
	}

	if err := svc.Reset(); err != nil {
		t.Fatal(err)
	}
	if after, _ := svc.Load(); after.Group.Name != "My Running Group" {
		t.Errorf("Reset kept %q", after.Group.Name)
	}
}

func TestSettingsValidation(t *testing.T) {
	svc := NewSettingsService(newTestStorage(t))

	tests := map[string]func(*domain.GroupConfig){
		"start time": func(c *domain.GroupConfig) { c.Group.StartTime = "7pm" },
		"latitude":   func(c *domain.GroupConfig) { c.Group.Latitude = 123 },
		"run day":    func(c *domain.GroupConfig) { c.Group.RunDays = []domain.Weekday{9} },
		"annual":     func(c *domain.GroupConfig) { c.NoRunDates.Annual = []domain.MonthDay{{Month: 13, Day: 1}} },
		"specific":   func(c *domain.GroupConfig) { c.NoRunDates.Specific = []string{"25/12/2024"} },
	}
	for name, mutate := range tests {
		cfg := domain.DefaultGroupConfig()
		mutate(cfg)
		if err := svc.Save(cfg); err == nil {
			t.Errorf("%s: Save accepted invalid config", name)
		}
	}
	if configured, _ := svc.IsConfigured(); configured {
		t.Error("invalid config was stored")
	}
}

func TestSettingsImportExport(t *testing.T) {
	svc := NewSettingsService(newTestStorage(t))

	doc := `
group:
  name: Canal Striders
  start_time: "18:45"
  run_days: [2]
sheet:
  spreadsheet_id: abc123
  columns:
    date: Run Date
messages:
  extra_options: [Jeffing]
`
	cfg, err := svc.ImportYAML([]byte(doc))
	if err != nil {
		t.Fatalf("ImportYAML: %v", err)
	}
	if cfg.Group.Name != "Canal Striders" || cfg.Sheet.SpreadsheetID != "abc123" {
		t.Errorf("imported = %+v", cfg)
	}
	if cfg.Sheet.Columns[domain.ColDate] != "Run Date" || cfg.Sheet.Columns[domain.ColNotes] != "Notes" {
		t.Errorf("columns not merged with defaults: %v", cfg.Sheet.Columns)
	}
	if cfg.Group.MeetingLocation != "Town Centre" || len(cfg.Messages.ChatClosings) == 0 {
		t.Error("omitted fields should keep their defaults")
	}

	out, err := svc.ExportYAML()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "Canal Striders") || !strings.Contains(string(out), "Jeffing") {
		t.Errorf("export:\n%s", out)
	}

	if _, err := svc.ImportYAML([]byte("group: [not, a, map]")); err == nil {
		t.Error("ImportYAML accepted malformed YAML")
	}
}

func TestSettingsSeedFromFile(t *testing.T) {
	svc := NewSettingsService(newTestStorage(t))
	path := filepath.Join(t.TempDir(), "group.yaml")
	if err := os.WriteFile(path, []byte("group:\n  name: Seeded\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if ok, err := svc.SeedFromFile(filepath.Join(t.TempDir(), "missing.yaml")); ok || err != nil {
		t.Errorf("missing seed = %v, %v", ok, err)
	}
	if ok, err := svc.SeedFromFile(path); !ok || err != nil {
		t.Fatalf("SeedFromFile = %v, %v", ok, err)
	}

	// Saved settings are never overwritten by the seed
	if err := os.WriteFile(path, []byte("group:\n  name: Other\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if ok, _ := svc.SeedFromFile(path); ok {
		t.Error("seed overwrote saved settings")
	}
	if cfg, _ := svc.Load(); cfg.Group.Name != "Seeded" {
		t.Errorf("name = %q", cfg.Group.Name)
	}
}

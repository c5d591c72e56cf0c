package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_YAMLWithEnvOverride(t *testing.T) {
	path := writeConfig(t, `
env: test
database:
  host: db.example.com
  port: 5432
  user: warehouse
  database: analytics
etl:
  batch_size: 25
  interval_minutes: 30
`)

	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("PGPASSWORD", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Env != "production" {
		t.Errorf("expected env override from environment, got %q", cfg.Env)
	}
	if cfg.Database.Host != "db.example.com" {
		t.Errorf("expected YAML database host, got %q", cfg.Database.Host)
	}
	if cfg.Database.Password != "s3cret" {
		t.Error("expected database password from environment")
	}
	if cfg.ETL.BatchSize != 25 {
		t.Errorf("expected batch_size 25, got %d", cfg.ETL.BatchSize)
	}
	if cfg.ETL.Interval() != 30*time.Minute {
		t.Errorf("expected 30m interval, got %v", cfg.ETL.Interval())
	}
}

func TestLoad_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("PGHOST", "envhost")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() with missing file failed: %v", err)
	}
	if cfg.Database.Host != "envhost" {
		t.Errorf("expected host from environment, got %q", cfg.Database.Host)
	}
}

func TestLoad_AppliesCalendarAndPolicyDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "env: test\n"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if len(cfg.Calendar.DayParts) != 3 {
		t.Fatalf("expected 3 default day parts, got %d", len(cfg.Calendar.DayParts))
	}
	if cfg.Calendar.DayParts[0].Name != "breakfast" {
		t.Errorf("expected breakfast first, got %q", cfg.Calendar.DayParts[0].Name)
	}
	if len(cfg.Calendar.PeakHours) != 3 {
		t.Fatalf("expected 3 default peak ranges, got %d", len(cfg.Calendar.PeakHours))
	}
	if cfg.Calendar.PeakHours[0].Start != "07:00" {
		t.Errorf("expected morning peak first, got %q", cfg.Calendar.PeakHours[0].Start)
	}
	if cfg.Dimensions["customer"] != "versioned" {
		t.Errorf("expected customer dimension versioned by default, got %q", cfg.Dimensions["customer"])
	}
	if cfg.ETL.IntervalMinutes != 15 {
		t.Errorf("expected default 15 minute interval, got %d", cfg.ETL.IntervalMinutes)
	}
}

func TestLoad_RejectsInvalidInterval(t *testing.T) {
	_, err := Load(writeConfig(t, `
etl:
  interval_minutes: 7
`))
	if err == nil {
		t.Fatal("expected error for interval that does not divide a day")
	}
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	_, err := Load(writeConfig(t, `
dimension_policies:
  customer: sometimes
`))
	if err == nil {
		t.Fatal("expected error for unknown change policy")
	}
}

func TestLoad_RejectsInvertedDayPart(t *testing.T) {
	_, err := Load(writeConfig(t, `
calendar:
  day_parts:
    - name: brunch
      start: "14:00"
      end: "11:00"
`))
	if err == nil {
		t.Fatal("expected error for day part ending before it starts")
	}
}

func TestLoad_RejectsInvertedPeakRange(t *testing.T) {
	_, err := Load(writeConfig(t, `
calendar:
  peak_hours:
    - start: "14:00"
      end: "12:00"
`))
	if err == nil {
		t.Fatal("expected error for peak range ending before it starts")
	}
}

func TestConnectionString(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "etl",
		Password: "pw", Database: "restalytics", SSLMode: "disable",
	}
	want := "host=localhost port=5432 user=etl password=pw dbname=restalytics sslmode=disable"
	if got := cfg.ConnectionString(); got != want {
		t.Errorf("ConnectionString() = %q, want %q", got, want)
	}
}

func TestCoverageRange(t *testing.T) {
	etl := ETLConfig{CoverageStart: "2020-01-01", CoverageDaysForward: 365}
	now := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

	from, to, err := etl.CoverageRange(now)
	if err != nil {
		t.Fatalf("CoverageRange() failed: %v", err)
	}
	if from != time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC) {
		t.Errorf("unexpected range start %v", from)
	}
	if to != now.AddDate(0, 0, 365) {
		t.Errorf("unexpected range end %v", to)
	}

	etl.CoverageStart = "01/01/2020"
	if _, _, err := etl.CoverageRange(now); err == nil {
		t.Error("expected error for malformed coverage_start")
	}
}

func TestCompileBusinessHours_SpecificRuleOverridesCatchAll(t *testing.T) {
	cal := CalendarConfig{
		BusinessHours: []BusinessHoursRule{
			{Open: "06:00", Close: "23:00"},
			{Days: []string{"sunday"}, Open: "10:00", Close: "16:00"},
		},
	}
	hours, err := cal.CompileBusinessHours()
	if err != nil {
		t.Fatalf("CompileBusinessHours() failed: %v", err)
	}
	if hours[time.Monday].Open != 6*60 {
		t.Errorf("expected Monday open 06:00, got %d", hours[time.Monday].Open)
	}
	if hours[time.Sunday].Open != 10*60 || hours[time.Sunday].Close != 16*60 {
		t.Errorf("expected Sunday 10:00-16:00, got %+v", hours[time.Sunday])
	}
}

func TestParseMinuteOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"06:30", 390, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"noon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseMinuteOfDay(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMinuteOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseMinuteOfDay(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

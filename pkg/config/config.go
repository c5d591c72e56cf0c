package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for the ETL engine.
// Configuration can come from a YAML file (config.yaml) or environment
// variables; environment variables override YAML values. Secrets
// (database and API passwords) must only come from environment variables.
type Config struct {
	Env string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`

	// Warehouse database (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Ordering platform API (extraction source)
	API APIConfig `yaml:"api"`

	// ETL engine tuning
	ETL ETLConfig `yaml:"etl"`

	// Business calendar: business hours and day-part labeling
	Calendar CalendarConfig `yaml:"calendar"`

	// Change-tracking policy per dimension type: "overwrite" or "versioned".
	Dimensions map[string]string `yaml:"dimension_policies"`

	// Periodic sync schedule
	Schedule ScheduleConfig `yaml:"schedule"`
}

// DatabaseConfig holds PostgreSQL warehouse configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"etl"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"restalytics"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// APIConfig holds the ordering platform API client configuration.
type APIConfig struct {
	BaseURL        string `yaml:"base_url" env:"API_BASE_URL"`
	Email          string `yaml:"email" env:"API_EMAIL"`
	Password       string `yaml:"-" env:"API_PASSWORD"` // Secret - not in YAML
	PageSize       int    `yaml:"page_size" env:"API_PAGE_SIZE" env-default:"20"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"API_TIMEOUT_SECONDS" env-default:"30"`
}

// ETLConfig holds batch, bucketing and retry tuning for the engine.
type ETLConfig struct {
	BatchSize       int `yaml:"batch_size" env:"ETL_BATCH_SIZE" env-default:"50"`
	IntervalMinutes int `yaml:"interval_minutes" env:"ETL_INTERVAL_MINUTES" env-default:"15"`

	// Time dimension coverage ensured at startup.
	CoverageStart       string `yaml:"coverage_start" env:"ETL_COVERAGE_START" env-default:"2020-01-01"`
	CoverageDaysForward int    `yaml:"coverage_days_forward" env:"ETL_COVERAGE_DAYS_FORWARD" env-default:"365"`

	// Retry policy for transient extraction/load failures.
	MaxRetries          int     `yaml:"max_retries" env:"ETL_MAX_RETRIES" env-default:"3"`
	RetryInitialDelayMS int     `yaml:"retry_initial_delay_ms" env:"ETL_RETRY_INITIAL_DELAY_MS" env-default:"500"`
	RetryBackoffFactor  float64 `yaml:"retry_backoff_factor" env:"ETL_RETRY_BACKOFF_FACTOR" env-default:"2.0"`
	RetryMaxDelayMS     int     `yaml:"retry_max_delay_ms" env:"ETL_RETRY_MAX_DELAY_MS" env-default:"30000"`
}

// Interval returns the time bucket size.
func (c *ETLConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// CoverageRange returns the date range the time dimension must cover.
func (c *ETLConfig) CoverageRange(now time.Time) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", c.CoverageStart)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid coverage_start %q: %w", c.CoverageStart, err)
	}
	return start, now.AddDate(0, 0, c.CoverageDaysForward), nil
}

// CalendarConfig describes business hours and day-part label ranges.
type CalendarConfig struct {
	// BusinessHours rules; a rule with an empty Days list applies to all
	// days not covered by a more specific rule.
	BusinessHours []BusinessHoursRule `yaml:"business_hours"`

	// DayParts is an ordered list; the first range containing a bucket's
	// start time wins. Times outside every range are labeled off_hours.
	DayParts []DayPartRange `yaml:"day_parts"`

	// PeakHours are demand-peak time-of-day ranges (morning, lunch and
	// dinner rushes by default).
	PeakHours []PeakHoursRange `yaml:"peak_hours"`
}

// BusinessHoursRule is an open/close window for one or more weekdays.
type BusinessHoursRule struct {
	Days  []string `yaml:"days"`
	Open  string   `yaml:"open"`
	Close string   `yaml:"close"`
}

// DayPartRange is a named time-of-day range, e.g. lunch 11:00-15:00.
type DayPartRange struct {
	Name  string `yaml:"name"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// PeakHoursRange is a peak time-of-day range, e.g. 12:00-14:00.
type PeakHoursRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// DayPart is a compiled day-part range in minutes since midnight,
// half-open [Start, End).
type DayPart struct {
	Name  string
	Start int
	End   int
}

// PeakWindow is a compiled peak range in minutes since midnight,
// half-open [Start, End).
type PeakWindow struct {
	Start int
	End   int
}

// HoursWindow is a compiled business-hours window in minutes since
// midnight, half-open [Open, Close).
type HoursWindow struct {
	Open  int
	Close int
}

// ScheduleConfig controls periodic sync runs.
type ScheduleConfig struct {
	Enabled      bool     `yaml:"enabled" env:"SCHEDULE_ENABLED" env-default:"false"`
	EveryMinutes int      `yaml:"every_minutes" env:"SCHEDULE_EVERY_MINUTES" env-default:"30"`
	StartHour    int      `yaml:"start_hour" env:"SCHEDULE_START_HOUR" env-default:"6"`
	StartMinute  int      `yaml:"start_minute" env:"SCHEDULE_START_MINUTE" env-default:"0"`
	EndHour      int      `yaml:"end_hour" env:"SCHEDULE_END_HOUR" env-default:"23"`
	EndMinute    int      `yaml:"end_minute" env:"SCHEDULE_END_MINUTE" env-default:"30"`
	ActiveDays   []string `yaml:"active_days"`
}

// Load reads configuration from the given YAML file with environment
// variable overrides. A missing file is not an error: the configuration
// is then read from the environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadConfig(path, cfg); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills calendar and policy defaults that cleanenv cannot
// express for slice and map fields.
func (c *Config) applyDefaults() {
	if len(c.Calendar.DayParts) == 0 {
		c.Calendar.DayParts = []DayPartRange{
			{Name: "breakfast", Start: "06:00", End: "11:00"},
			{Name: "lunch", Start: "11:00", End: "15:00"},
			{Name: "dinner", Start: "15:00", End: "23:00"},
		}
	}
	if len(c.Calendar.BusinessHours) == 0 {
		c.Calendar.BusinessHours = []BusinessHoursRule{
			{Open: "06:00", Close: "23:00"},
		}
	}
	if len(c.Calendar.PeakHours) == 0 {
		c.Calendar.PeakHours = []PeakHoursRange{
			{Start: "07:00", End: "09:00"},
			{Start: "12:00", End: "14:00"},
			{Start: "18:00", End: "20:00"},
		}
	}
	if len(c.Dimensions) == 0 {
		c.Dimensions = map[string]string{
			"customer":       "versioned",
			"restaurant":     "overwrite",
			"promotion":      "overwrite",
			"payment_method": "overwrite",
		}
	}
}

// Validate checks cross-field constraints that cleanenv cannot.
func (c *Config) Validate() error {
	if c.ETL.IntervalMinutes <= 0 {
		return fmt.Errorf("interval_minutes must be positive, got %d", c.ETL.IntervalMinutes)
	}
	if (24*60)%c.ETL.IntervalMinutes != 0 {
		return fmt.Errorf("interval_minutes %d does not evenly divide a day", c.ETL.IntervalMinutes)
	}
	if c.ETL.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.ETL.BatchSize)
	}

	for dim, policy := range c.Dimensions {
		if policy != "overwrite" && policy != "versioned" {
			return fmt.Errorf("dimension %q has unknown change policy %q", dim, policy)
		}
	}

	if _, err := c.Calendar.CompileDayParts(); err != nil {
		return err
	}
	if _, err := c.Calendar.CompileBusinessHours(); err != nil {
		return err
	}
	if _, err := c.Calendar.CompilePeakHours(); err != nil {
		return err
	}
	if _, _, err := c.ETL.CoverageRange(time.Now()); err != nil {
		return err
	}

	return nil
}

// CompileDayParts parses the configured day-part ranges, preserving order.
func (c *CalendarConfig) CompileDayParts() ([]DayPart, error) {
	parts := make([]DayPart, 0, len(c.DayParts))
	for _, r := range c.DayParts {
		start, err := ParseMinuteOfDay(r.Start)
		if err != nil {
			return nil, fmt.Errorf("day part %q start: %w", r.Name, err)
		}
		end, err := ParseMinuteOfDay(r.End)
		if err != nil {
			return nil, fmt.Errorf("day part %q end: %w", r.Name, err)
		}
		if end <= start {
			return nil, fmt.Errorf("day part %q: end %s not after start %s", r.Name, r.End, r.Start)
		}
		parts = append(parts, DayPart{Name: r.Name, Start: start, End: end})
	}
	return parts, nil
}

// CompilePeakHours parses the configured peak-hour ranges.
func (c *CalendarConfig) CompilePeakHours() ([]PeakWindow, error) {
	windows := make([]PeakWindow, 0, len(c.PeakHours))
	for _, r := range c.PeakHours {
		start, err := ParseMinuteOfDay(r.Start)
		if err != nil {
			return nil, fmt.Errorf("peak hours start: %w", err)
		}
		end, err := ParseMinuteOfDay(r.End)
		if err != nil {
			return nil, fmt.Errorf("peak hours end: %w", err)
		}
		if end <= start {
			return nil, fmt.Errorf("peak hours: end %s not after start %s", r.End, r.Start)
		}
		windows = append(windows, PeakWindow{Start: start, End: end})
	}
	return windows, nil
}

// CompileBusinessHours resolves the business-hours rules to a window per
// weekday. Later rules override earlier ones for the days they name;
// catch-all rules (empty Days) apply to every day.
func (c *CalendarConfig) CompileBusinessHours() (map[time.Weekday]HoursWindow, error) {
	hours := make(map[time.Weekday]HoursWindow, 7)
	for _, rule := range c.BusinessHours {
		open, err := ParseMinuteOfDay(rule.Open)
		if err != nil {
			return nil, fmt.Errorf("business hours open: %w", err)
		}
		closeAt, err := ParseMinuteOfDay(rule.Close)
		if err != nil {
			return nil, fmt.Errorf("business hours close: %w", err)
		}
		if closeAt <= open {
			return nil, fmt.Errorf("business hours: close %s not after open %s", rule.Close, rule.Open)
		}
		window := HoursWindow{Open: open, Close: closeAt}

		if len(rule.Days) == 0 {
			for d := time.Sunday; d <= time.Saturday; d++ {
				hours[d] = window
			}
			continue
		}
		for _, name := range rule.Days {
			day, err := ParseWeekday(name)
			if err != nil {
				return nil, err
			}
			hours[day] = window
		}
	}
	return hours, nil
}

// ParseMinuteOfDay parses "HH:MM" into minutes since midnight.
func ParseMinuteOfDay(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday parses a lowercase or capitalized English weekday name.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", name)
	}
	return day, nil
}

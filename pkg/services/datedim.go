package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/restalytics/etl-engine/pkg/config"
	"github.com/restalytics/etl-engine/pkg/models"
	"github.com/restalytics/etl-engine/pkg/repositories"
)

// DateDimensionGenerator pre-populates the time dimension: one bucket
// per fixed sub-hour interval per calendar day, carrying calendar
// attributes and the configured business-period label. Generation is
// idempotent - overlapping ranges never duplicate buckets.
type DateDimensionGenerator struct {
	buckets  repositories.TimeBucketRepository
	interval time.Duration
	dayParts []config.DayPart
	hours    map[time.Weekday]config.HoursWindow
	peaks    []config.PeakWindow
	holidays map[int]map[time.Time]bool // bank holidays per year
	logger   *zap.Logger
}

// NewDateDimensionGenerator compiles the calendar configuration and
// validates the interval. An interval that does not evenly divide a day
// is rejected here, before anything is written.
func NewDateDimensionGenerator(
	buckets repositories.TimeBucketRepository,
	calendar config.CalendarConfig,
	interval time.Duration,
	logger *zap.Logger,
) (*DateDimensionGenerator, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("bucket interval must be positive, got %s", interval)
	}
	if (24*time.Hour)%interval != 0 {
		return nil, fmt.Errorf("bucket interval %s does not evenly divide a day", interval)
	}

	dayParts, err := calendar.CompileDayParts()
	if err != nil {
		return nil, err
	}
	hours, err := calendar.CompileBusinessHours()
	if err != nil {
		return nil, err
	}
	peaks, err := calendar.CompilePeakHours()
	if err != nil {
		return nil, err
	}

	return &DateDimensionGenerator{
		buckets:  buckets,
		interval: interval,
		dayParts: dayParts,
		hours:    hours,
		peaks:    peaks,
		holidays: make(map[int]map[time.Time]bool),
		logger:   logger.Named("datedim"),
	}, nil
}

// Generate ensures a bucket row exists for every interval of every day
// in [start, end]. Existing buckets are left untouched.
func (g *DateDimensionGenerator) Generate(ctx context.Context, start, end time.Time) error {
	startDay := midnight(start)
	endDay := midnight(end)
	if endDay.Before(startDay) {
		return fmt.Errorf("range end %s precedes start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	perDay := int((24 * time.Hour) / g.interval)
	var total int64

	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		rows := make([]models.TimeBucket, 0, perDay)
		for i := 0; i < perDay; i++ {
			rows = append(rows, g.buildBucket(day.Add(time.Duration(i)*g.interval)))
		}

		inserted, err := g.buckets.UpsertBatch(ctx, rows)
		if err != nil {
			return fmt.Errorf("generate time dimension for %s: %w", day.Format("2006-01-02"), err)
		}
		total += inserted
	}

	g.logger.Info("time dimension generated",
		zap.Time("start", startDay),
		zap.Time("end", endDay),
		zap.Int64("buckets_inserted", total))
	return nil
}

// EnsureCoverage extends the time dimension so it covers [from, to],
// generating only the missing leading and trailing stretches. Called at
// startup so no fact load ever references an absent bucket.
func (g *DateDimensionGenerator) EnsureCoverage(ctx context.Context, from, to time.Time) error {
	first, last, err := g.buckets.CoveredRange(ctx)
	if err != nil {
		return err
	}

	if first == nil || last == nil {
		return g.Generate(ctx, from, to)
	}

	if midnight(from).Before(midnight(*first)) {
		if err := g.Generate(ctx, from, *first); err != nil {
			return err
		}
	}
	if midnight(to).After(midnight(*last)) {
		if err := g.Generate(ctx, *last, to); err != nil {
			return err
		}
	}
	return nil
}

func (g *DateDimensionGenerator) buildBucket(t time.Time) models.TimeBucket {
	minuteOfDay := t.Hour()*60 + t.Minute()
	weekday := t.Weekday()

	return models.TimeBucket{
		BucketStart:     t,
		Date:            midnight(t),
		Year:            t.Year(),
		Quarter:         (int(t.Month())-1)/3 + 1,
		Month:           int(t.Month()),
		Day:             t.Day(),
		Hour:            t.Hour(),
		Minute:          t.Minute(),
		DayOfWeek:       models.ISOWeekday(weekday),
		IsWeekend:       weekday == time.Saturday || weekday == time.Sunday,
		IsHoliday:       g.isHoliday(t),
		IsBusinessHours: g.isBusinessHours(weekday, minuteOfDay),
		IsPeakHour:      g.isPeakHour(minuteOfDay),
		DayPart:         g.dayPart(minuteOfDay),
	}
}

// isHoliday reports whether t's calendar date is an England bank
// holiday (or a Monday substitute for one).
func (g *DateDimensionGenerator) isHoliday(t time.Time) bool {
	set, ok := g.holidays[t.Year()]
	if !ok {
		set = bankHolidays(t.Year())
		g.holidays[t.Year()] = set
	}
	return set[utcDate(t.Year(), t.Month(), t.Day())]
}

func (g *DateDimensionGenerator) isPeakHour(minuteOfDay int) bool {
	for _, p := range g.peaks {
		if minuteOfDay >= p.Start && minuteOfDay < p.End {
			return true
		}
	}
	return false
}

// dayPart returns the label of the first configured range containing
// the minute, or off_hours when none matches.
func (g *DateDimensionGenerator) dayPart(minuteOfDay int) string {
	for _, p := range g.dayParts {
		if minuteOfDay >= p.Start && minuteOfDay < p.End {
			return p.Name
		}
	}
	return "off_hours"
}

func (g *DateDimensionGenerator) isBusinessHours(day time.Weekday, minuteOfDay int) bool {
	window, ok := g.hours[day]
	if !ok {
		return false
	}
	return minuteOfDay >= window.Open && minuteOfDay < window.Close
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

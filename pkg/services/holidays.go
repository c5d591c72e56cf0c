package services

import "time"

// easterSunday computes Easter Sunday for a year using the anonymous
// Gregorian (Computus) algorithm.
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return utcDate(year, time.Month(month), day)
}

// bankHolidays returns the England bank holiday dates of a year, keyed
// by midnight UTC: New Year's Day, Good Friday, Easter Monday, the
// early May and spring bank holidays (first and last Monday of May),
// the summer bank holiday (last Monday of August), Christmas Day and
// Boxing Day. A holiday falling on a weekend gets a substitute on the
// following Monday; the original date stays in the set.
func bankHolidays(year int) map[time.Time]bool {
	easter := easterSunday(year)

	days := []time.Time{
		utcDate(year, time.January, 1),
		utcDate(year, time.December, 25),
		utcDate(year, time.December, 26),
		easter.AddDate(0, 0, -2),
		easter.AddDate(0, 0, 1),
		nextMonday(utcDate(year, time.May, 1)),
		prevMonday(utcDate(year, time.May, 31)),
		prevMonday(utcDate(year, time.August, 31)),
	}

	set := make(map[time.Time]bool, len(days)+3)
	for _, d := range days {
		set[d] = true
		switch d.Weekday() {
		case time.Saturday:
			set[d.AddDate(0, 0, 2)] = true
		case time.Sunday:
			set[d.AddDate(0, 0, 1)] = true
		}
	}
	return set
}

func nextMonday(d time.Time) time.Time {
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

func prevMonday(d time.Time) time.Time {
	for d.Weekday() != time.Monday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

func utcDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

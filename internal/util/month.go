package util

import (
	"fmt"
	"time"
)

// MonthYear encodes a calendar month as YYYYMM, e.g. 202501 for January 2025.
type MonthYear int

// NewMonthYear builds a MonthYear from a year and 1-indexed month
func NewMonthYear(year, month int) MonthYear {
	return MonthYear(year*100 + month)
}

// MonthYearFromTime returns the MonthYear containing t (UTC)
func MonthYearFromTime(t time.Time) MonthYear {
	u := t.UTC()
	return NewMonthYear(u.Year(), int(u.Month()))
}

// Year returns the calendar year component
func (m MonthYear) Year() int {
	return int(m) / 100
}

// Month returns the 1-indexed month component
func (m MonthYear) Month() int {
	return int(m) % 100
}

// Valid reports whether m encodes a real month between 2000 and 2100
func (m MonthYear) Valid() bool {
	y, mo := m.Year(), m.Month()
	return y >= 2000 && y <= 2100 && mo >= 1 && mo <= 12
}

// Next returns the following month, rolling over year boundaries
func (m MonthYear) Next() MonthYear {
	if m.Month() == 12 {
		return NewMonthYear(m.Year()+1, 1)
	}
	return NewMonthYear(m.Year(), m.Month()+1)
}

// Prev returns the preceding month
func (m MonthYear) Prev() MonthYear {
	if m.Month() == 1 {
		return NewMonthYear(m.Year()-1, 12)
	}
	return NewMonthYear(m.Year(), m.Month()-1)
}

// LastDay returns midnight UTC on the last day of the month
func (m MonthYear) LastDay() time.Time {
	return time.Date(m.Year(), time.Month(m.Month())+1, 0, 0, 0, 0, 0, time.UTC)
}

// DayClamped returns midnight UTC on the target day of the month, clamping
// days past the month's end (e.g. day 31 in February yields Feb 28/29)
func (m MonthYear) DayClamped(targetDay int) time.Time {
	lastDay := m.LastDay().Day()
	actualDay := targetDay
	if actualDay > lastDay {
		actualDay = lastDay
	}
	return time.Date(m.Year(), time.Month(m.Month()), actualDay, 0, 0, 0, 0, time.UTC)
}

func (m MonthYear) String() string {
	return fmt.Sprintf("%04d%02d", m.Year(), m.Month())
}

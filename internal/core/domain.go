package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// DateFormat is the ISO layout used to persist and exchange cost dates.
const DateFormat = "2006-01-02"

// MaxDescriptionLen is the longest description accepted, in characters.
const MaxDescriptionLen = 200

type (
	// Date is a calendar date in UTC. The zero value is unset, which is
	// distinct from 0001-01-01.
	Date struct {
		time.Time
		set bool
	}

	// NewCost is a cost record before the store has assigned it an ID.
	NewCost struct {
		Sum         decimal.Decimal `json:"sum" yaml:"sum"`
		Category    string          `json:"category" yaml:"category"`
		Description string          `json:"description" yaml:"description"`
		Date        Date            `json:"date" yaml:"date"`
	}

	// Cost is a persisted cost record.
	Cost struct {
		ID int64 `json:"id" yaml:"id"`
		NewCost
	}
)

var (
	ErrInvalidDate    = errors.New("invalid date")
	ErrInvalidMonth   = errors.New("invalid month")
	ErrInvalidYear    = errors.New("invalid year")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrEmptyCategory  = errors.New("empty category")
	ErrDescriptionLen = errors.New("description too long (max 200 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), set: true}
}

// ParseDate parses a strict YYYY-MM-DD calendar date. Dates that time.Date
// would normalize (2025-02-30) and year 0000 are rejected.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w %q: want format %s", ErrInvalidDate, s, DateFormat)
	}
	if t.Year() < 1 {
		return Date{}, fmt.Errorf("%w %q: year must be between 0001 and 9999", ErrInvalidDate, s)
	}
	return Date{Time: t, set: true}, nil
}

// MustParseDate is like ParseDate but panics on error.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Validate reports whether d is set and within years 0001-9999.
func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date is not set", ErrInvalidDate)
	}
	if err := ValidateYear(d.Year()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDate, err)
	}
	return nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return !d.set
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Time.Format(DateFormat)
}

// MarshalText encodes d as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText parses a YYYY-MM-DD date with ParseDate.
func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON overrides the RFC 3339 encoding promoted from time.Time.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON decodes a quoted YYYY-MM-DD date.
func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	return d.UnmarshalText([]byte(s))
}

// MonthRange returns the half-open date range [first day of month, first day
// of next month).
func MonthRange(month, year int) (Date, Date) {
	from := NewDate(year, month, 1)
	return from, Date{Time: from.AddDate(0, 1, 0), set: true}
}

// YearRange returns the half-open date range covering the given year.
func YearRange(year int) (Date, Date) {
	return NewDate(year, 1, 1), NewDate(year+1, 1, 1)
}

// ValidateMonth checks that month is between 1 and 12.
func ValidateMonth(month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w %d: must be between 1 and 12", ErrInvalidMonth, month)
	}
	return nil
}

// ValidateYear checks that year has four digits (0001-9999).
func ValidateYear(year int) error {
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w %d: must be a four-digit year", ErrInvalidYear, year)
	}
	return nil
}

// Validate checks the fields a cost needs before it can be stored.
func (c NewCost) Validate() error {
	if err := c.Date.Validate(); err != nil {
		return err
	}
	if !c.Sum.IsPositive() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(c.Category) == "" {
		return ErrEmptyCategory
	}
	if utf8.RuneCountInString(c.Description) > MaxDescriptionLen {
		return ErrDescriptionLen
	}
	return nil
}

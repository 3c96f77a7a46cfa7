// Package daterange turns dashboard range selections into publish-time bounds.
package daterange

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Preset names a relative range.
type Preset string

const (
	PresetFull  Preset = "full"
	PresetToday Preset = "today"
	Preset7d    Preset = "7d"
	Preset30d   Preset = "30d"
)

// DateLayout is the format of explicit bounds.
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDateFormat is returned for explicit bounds that are not YYYY-MM-DD dates.
	ErrInvalidDateFormat = errors.New("date must be in YYYY-MM-DD format")
	// ErrUnknownPreset is returned for preset names other than the Preset constants.
	ErrUnknownPreset = errors.New("unknown range preset")
)

var datePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Range bounds published_at inclusively. A nil side is unbounded.
type Range struct {
	From *time.Time
	To   *time.Time
}

// Bounded reports whether either side is set.
func (r Range) Bounded() bool {
	return r.From != nil || r.To != nil
}

// Builder resolves presets against an injected clock. Presets use the
// builder's location for "midnight"; explicit dates are always UTC days.
type Builder struct {
	loc *time.Location
	now func() time.Time
}

// NewBuilder creates a Builder. A nil loc means UTC and a nil now means time.Now.
func NewBuilder(loc *time.Location, now func() time.Time) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Builder{loc: loc, now: now}
}

// Location returns the reference timezone used for presets.
func (b *Builder) Location() *time.Location {
	return b.loc
}

// Build returns the range for the given inputs. Explicit bounds take
// precedence over preset; each given bound covers its whole UTC day.
func (b *Builder) Build(preset, from, to string) (Range, error) {
	if from != "" || to != "" {
		return explicit(from, to)
	}

	switch Preset(preset) {
	case "", PresetFull:
		return Range{}, nil
	case PresetToday:
		return b.since(0), nil
	case Preset7d:
		return b.since(7), nil
	case Preset30d:
		return b.since(30), nil
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrUnknownPreset, preset)
	}
}

// since returns [local midnight days ago, now].
func (b *Builder) since(days int) Range {
	now := b.now().In(b.loc)
	y, m, d := now.Date()
	start := time.Date(y, m, d-days, 0, 0, 0, 0, b.loc)
	return Range{From: &start, To: &now}
}

func explicit(from, to string) (Range, error) {
	var r Range
	if from != "" {
		day, err := parseDay(from)
		if err != nil {
			return Range{}, err
		}
		r.From = &day
	}
	if to != "" {
		day, err := parseDay(to)
		if err != nil {
			return Range{}, err
		}
		end := day.Add(24*time.Hour - time.Millisecond)
		r.To = &end
	}
	return r, nil
}

func parseDay(s string) (time.Time, error) {
	if !datePattern.MatchString(s) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	day, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDateFormat, s)
	}
	return day, nil
}

package booking

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"teesync/internal/model"
)

// BlockLines is the number of consecutive text lines the portal renders per
// booking on the bookings page. The whole parser depends on this layout.
const BlockLines = 9

// Line offsets inside a booking block.
const (
	dateLine  = 0
	holesLine = 1
)

// Round durations. A holes line mentioning "18" is a full round; anything
// else is treated as nine holes.
const (
	EighteenHoleRound = 5 * time.Hour
	NineHoleRound     = 2*time.Hour + 30*time.Minute
)

// Parser turns scraped page lines into bookings. TextParser is the only
// implementation today; a structured source can replace it without touching
// reconciliation.
type Parser interface {
	Parse(lines []string) ([]model.Booking, error)
}

// TextParser parses the fixed-width text layout of the bookings page.
type TextParser struct {
	// Location is the zone booking times are read in. Nil means time.Local.
	Location *time.Location
}

var _ Parser = TextParser{}

// Parse decodes lines using time.Local.
func Parse(lines []string) ([]model.Booking, error) {
	return TextParser{}.Parse(lines)
}

// Parse splits lines into BlockLines-sized blocks and decodes each one.
//
// The result is all-or-nothing: a trailing partial block or an unparsable
// date returns a *MalformedPageError and no bookings. Empty input yields an
// empty, non-nil slice.
func (p TextParser) Parse(lines []string) ([]model.Booking, error) {
	if len(lines)%BlockLines != 0 {
		return nil, &MalformedPageError{
			Block:  len(lines) / BlockLines,
			Line:   len(lines) - len(lines)%BlockLines,
			Reason: fmt.Sprintf("%d trailing lines do not form a %d-line booking block", len(lines)%BlockLines, BlockLines),
		}
	}

	loc := p.Location
	if loc == nil {
		loc = time.Local
	}

	bookings := make([]model.Booking, 0, len(lines)/BlockLines)
	for block := 0; block*BlockLines < len(lines); block++ {
		first := block * BlockLines
		b, err := parseBlock(lines[first:first+BlockLines], loc)
		if err != nil {
			return nil, &MalformedPageError{
				Block:  block,
				Line:   first + dateLine,
				Reason: fmt.Sprintf("cannot parse date %q", lines[first+dateLine]),
				Err:    err,
			}
		}
		bookings = append(bookings, b)
	}

	return bookings, nil
}

func parseBlock(block []string, loc *time.Location) (model.Booking, error) {
	start, err := ParseDateTime(block[dateLine], loc)
	if err != nil {
		return model.Booking{}, err
	}

	round := RoundDuration(block[holesLine])

	return model.Booking{
		Start:         start,
		End:           start.Add(round),
		RoundDuration: round,
		Description:   JoinBlock(block),
	}, nil
}

// JoinBlock is the event description for a booking block: its lines joined
// with newlines.
func JoinBlock(block []string) string {
	return strings.Join(block, "\n")
}

// RoundDuration returns the playing time for a holes indicator line.
func RoundDuration(holes string) time.Duration {
	if strings.Contains(holes, "18") {
		return EighteenHoleRound
	}
	return NineHoleRound
}

// SplitLines splits the visible page text into lines. Blank lines are kept
// because the layout is positional.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return []string{}
	}
	return strings.Split(text, "\n")
}

// portalLayouts are the date formats seen on the bookings page once weekday
// names and ordinal suffixes are removed, e.g. "Saturday 18th May 2024 09:30".
var portalLayouts = []string{
	"2 January 2006 15:04",
	"2 Jan 2006 15:04",
	"2 January 2006 3:04pm",
	"2 Jan 2006 3:04pm",
	"2 January 2006 3:04 pm",
	"2 Jan 2006 3:04 pm",
	"02/01/2006 15:04",
	"2/1/2006 15:04",
}

var (
	weekdayPrefix = regexp.MustCompile(`(?i)^(mon|tue|wed|thu|fri|sat|sun)[a-z]*\.?,?\s+`)
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	atSeparator   = regexp.MustCompile(`(?i)\s+(at|@|-)\s+`)
)

// normalizeDate strips the decoration the portal puts around a date so it
// matches one of portalLayouts.
func normalizeDate(s string) string {
	s = strings.TrimSpace(s)
	s = weekdayPrefix.ReplaceAllString(s, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = atSeparator.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, ",", " ")
	return strings.Join(strings.Fields(s), " ")
}

// ParseDateTime reads a human-readable date/time in loc. Known portal layouts
// are tried first; anything else goes through dateparse.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	normalized := normalizeDate(s)
	for _, layout := range portalLayouts {
		if t, err := time.ParseInLocation(layout, normalized, loc); err == nil {
			return t, nil
		}
	}

	t, err := dateparse.ParseIn(strings.TrimSpace(s), loc)
	if err == nil {
		return t, nil
	}
	if t, nerr := dateparse.ParseIn(normalized, loc); nerr == nil {
		return t, nil
	}
	return time.Time{}, err
}

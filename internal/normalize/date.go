package normalize

import (
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrUnparsedDate means no configured layout matched.
var ErrUnparsedDate = eris.New("normalize: unparsed date")

var ordinalRe = regexp.MustCompile(`(\d)(st|nd|rd|th)\b`)

// ParseDate tries normalized (the service's ISO reading) first, then each
// layout in order against raw. The result is a UTC date at day precision.
func ParseDate(raw, normalized string, layouts []string) (time.Time, error) {
	if n := strings.TrimSpace(normalized); n != "" {
		if t, err := time.Parse("2006-01-02", n); err == nil {
			return t.UTC(), nil
		}
	}

	s := strings.Join(strings.Fields(raw), " ")
	s = ordinalRe.ReplaceAllString(s, "$1")
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return time.Time{}, ErrUnparsedDate
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, ErrUnparsedDate
}

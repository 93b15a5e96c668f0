package enrich

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// PublishedLayout is the display format of normalized timestamps.
const PublishedLayout = "2006-01-02 15:04 MST"

// NormalizeTime parses a source timestamp in any common format and renders
// it in loc. Values without a zone are read as loc-local. Unparseable or
// blank input yields "".
func NormalizeTime(raw string, loc *time.Location) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := dateparse.ParseIn(raw, loc)
	if err != nil {
		return ""
	}
	return t.In(loc).Format(PublishedLayout)
}

// LoadLocation resolves an IANA zone name; "" means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

package xmltv

import (
	"regexp"
	"strconv"
	"time"
)

// TimeLayout is the 14-digit XMLTV timestamp without its zone suffix.
const TimeLayout = "20060102150405"

var stampRe = regexp.MustCompile(`^(\d{14})(?:\s*([+\-]\d{4}|Z))?`)

// ParseTime converts an XMLTV timestamp such as "20240101120000 +0200" to a UTC
// instant. A stamp without a zone, or with "Z", is read as UTC. It returns nil
// for empty or malformed input.
func ParseTime(raw string) *time.Time {
	m := stampRe.FindStringSubmatch(raw)
	if m == nil {
		return nil
	}

	t, err := time.Parse(TimeLayout, m[1])
	if err != nil {
		return nil
	}

	if tz := m[2]; tz != "" && tz != "Z" {
		hours, _ := strconv.Atoi(tz[1:3])
		mins, _ := strconv.Atoi(tz[3:5])
		offset := time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute
		if tz[0] == '-' {
			offset = -offset
		}
		t = t.Add(-offset)
	}

	t = t.UTC()
	return &t
}

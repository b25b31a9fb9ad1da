package rfc7234

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Directives is a parsed Cache-Control (or Pragma) header value.
// Keys are lowercase directive names. A directive present without an
// argument maps to the empty string.
type Directives map[string]string

// Has reports whether the directive is present, with or without a value.
func (d Directives) Has(name string) bool {
	_, ok := d[name]
	return ok
}

// Seconds returns the directive's argument as a duration.
// Arguments that are absent or do not parse as a non-negative integer
// report false, so callers fall through to the next freshness rule
// (RFC 7234 Section 1.2.1, delta-seconds).
func (d Directives) Seconds(name string) (time.Duration, bool) {
	val, ok := d[name]
	if !ok || val == "" {
		return 0, false
	}
	seconds, err := strconv.ParseInt(val, 10, 32)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// String serializes the directives back into a Cache-Control header value.
// Directive order is not significant, so names are sorted for stable output.
func (d Directives) String() string {
	names := make([]string, 0, len(d))
	for name := range d {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		if val := d[name]; val != "" {
			parts = append(parts, name+"="+val)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

// ParseCacheControl parses a raw Cache-Control header value into a
// directive map. Real-world headers violate the RFC syntax routinely, so
// parsing never fails: stray commas produce empty segments that are
// skipped, whitespace around "=" is stripped, quoted arguments are
// unwrapped, and unknown directives are kept verbatim. When a directive
// occurs more than once the last occurrence wins, which mirrors how the
// values were (incorrectly) merged by whoever generated the header.
func ParseCacheControl(value string) Directives {
	d := make(Directives)
	if value == "" {
		return d
	}
	for _, segment := range strings.Split(value, ",") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		name, arg, hasArg := strings.Cut(segment, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if !hasArg {
			d[name] = ""
			continue
		}
		arg = strings.TrimSpace(arg)
		if len(arg) >= 2 && strings.HasPrefix(arg, `"`) && strings.HasSuffix(arg, `"`) {
			arg = arg[1 : len(arg)-1]
		}
		d[name] = arg
	}
	return d
}

package rfc7234

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ResponseHeaders returns the stored response's headers ready to be
// served to a client: hop-by-hop fields and Connection-listed tokens are
// stripped, 1xx Warning entries (which describe transient conditions
// that do not survive storage) are dropped, and Age and Date are
// rewritten for the moment of serving. The stored snapshot itself is
// never mutated.
func (p *CachePolicy) ResponseHeaders(now time.Time) http.Header {
	headers := copyWithoutHopByHop(p.resHeaders)
	age := p.Age(now)

	// A response served long past any explicit expiration signal gets
	// the heuristic-expiration warning (RFC 7234 Section 5.5.4).
	if age > 24*time.Hour && !p.hasExplicitExpiration() && p.MaxAge() > 24*time.Hour {
		warning := `113 - "rfc7234 5.5.4"`
		if existing := headers["warning"]; existing != "" {
			warning = existing + ", " + warning
		}
		headers["warning"] = warning
	}

	headers["age"] = strconv.FormatInt(int64(age/time.Second), 10)
	headers["date"] = now.UTC().Format(http.TimeFormat)
	return headers.httpHeader()
}

// Status returns the status code of the stored response.
func (p *CachePolicy) Status() int {
	return p.status
}

// copyWithoutHopByHop copies a header map minus the static hop-by-hop
// table, minus any fields the Connection header nominates as
// connection-scoped, and with 1xx Warning entries filtered out.
func copyWithoutHopByHop(in headerMap) headerMap {
	out := make(headerMap, len(in))
	for name, value := range in {
		if !hopByHopHeaders[name] {
			out[name] = value
		}
	}

	if connection, ok := in["connection"]; ok {
		for _, token := range strings.Split(connection, ",") {
			delete(out, strings.ToLower(strings.TrimSpace(token)))
		}
	}

	if warning, ok := out["warning"]; ok {
		kept := make([]string, 0, 2)
		for _, entry := range strings.Split(warning, ",") {
			if !isTransientWarning(entry) {
				kept = append(kept, entry)
			}
		}
		if len(kept) == 0 {
			delete(out, "warning")
		} else {
			out["warning"] = strings.TrimSpace(strings.Join(kept, ","))
		}
	}

	return out
}

// isTransientWarning reports whether a Warning entry carries a 1xx code.
func isTransientWarning(entry string) bool {
	entry = strings.TrimSpace(entry)
	return len(entry) >= 3 && entry[0] == '1' &&
		entry[1] >= '0' && entry[1] <= '9' &&
		entry[2] >= '0' && entry[2] <= '9'
}

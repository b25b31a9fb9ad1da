package rfc7234

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// maxClockDrift bounds how far a server Date header may disagree with
// the local receive time before it is discarded as unsynchronized
// (RFC 7234 Section 4.2.3 allows either clock; we take the server's
// only when it is plausibly the same wall time).
const maxClockDrift = 8 * time.Hour

// date returns the time base used for freshness arithmetic: the server
// Date header when trusted and within drift tolerance, otherwise the
// instant the response was received.
func (p *CachePolicy) date() time.Time {
	if !p.opt.TrustServerDate {
		return p.responseTime
	}
	serverDate, err := http.ParseTime(p.resHeaders["date"])
	if err != nil {
		return p.responseTime
	}
	drift := p.responseTime.Sub(serverDate)
	if drift > maxClockDrift || drift < -maxClockDrift {
		return p.responseTime
	}
	return serverDate
}

// ageValue parses the Age header (delta-seconds). Non-numeric or
// negative values are treated as absent, never as an error.
func ageValue(raw string) (time.Duration, bool) {
	seconds, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

// Age estimates how old the response is at the given instant
// (RFC 7234 Section 4.2.3): the apparent age from the clock skew between
// Date and receipt, corrected upward by the server-asserted Age header,
// plus the time the response has been resident since receipt.
func (p *CachePolicy) Age(now time.Time) time.Duration {
	age := p.responseTime.Sub(p.date())
	if age < 0 {
		age = 0
	}
	if asserted, ok := ageValue(p.resHeaders["age"]); ok && asserted > age {
		age = asserted
	}
	return age + now.Sub(p.responseTime)
}

// hasExplicitExpiration reports whether the response carries any
// explicit freshness signal applicable to this cache.
func (p *CachePolicy) hasExplicitExpiration() bool {
	if p.opt.Shared {
		if _, ok := p.resDirectives.Seconds("s-maxage"); ok {
			return true
		}
	}
	if _, ok := p.resDirectives.Seconds("max-age"); ok {
		return true
	}
	_, ok := p.resHeaders["expires"]
	return ok
}

// MaxAge returns the freshness lifetime of the stored response
// (RFC 7234 Section 4.2.1). Resolution order: s-maxage for shared
// caches, then max-age, then Expires minus the Date time base, then the
// Last-Modified heuristic; responses carrying immutable get a floor of
// ImmutableMinTTL on the non-directive paths. Unusable responses
// (unstorable, no-cache, shared cookies, Vary: *) have a lifetime of
// zero.
func (p *CachePolicy) MaxAge() time.Duration {
	if !p.Storable() || p.resDirectives.Has("no-cache") {
		return 0
	}

	// Vary: * can never be matched, so no freshness directive rescues
	// the response, s-maxage included.
	if strings.TrimSpace(p.resHeaders["vary"]) == "*" {
		return 0
	}

	if p.opt.Shared {
		if p.resDirectives.Has("proxy-revalidate") {
			return 0
		}
		// A shared cache with s-maxage ignores Expires and max-age.
		if lifetime, ok := p.resDirectives.Seconds("s-maxage"); ok {
			return lifetime
		}
	}

	if lifetime, ok := p.resDirectives.Seconds("max-age"); ok {
		return lifetime
	}

	var floor time.Duration
	if p.resDirectives.Has("immutable") {
		floor = p.opt.ImmutableMinTTL
	}

	dateTime := p.date()
	if expiresRaw, ok := p.resHeaders["expires"]; ok {
		// Invalid Expires values, famously "0", mean already expired.
		expires, err := http.ParseTime(expiresRaw)
		if err != nil || expires.Before(dateTime) {
			return 0
		}
		return durationMax(floor, expires.Sub(dateTime))
	}

	if lastModified, err := http.ParseTime(p.resHeaders["last-modified"]); err == nil && dateTime.After(lastModified) {
		heuristic := time.Duration(float64(dateTime.Sub(lastModified)) * p.opt.CacheHeuristic)
		return durationMax(floor, heuristic)
	}

	return floor
}

// TimeToLive is the remaining freshness lifetime at the given instant.
// A negative value signals how far past freshness the response is.
func (p *CachePolicy) TimeToLive(now time.Time) time.Duration {
	return p.MaxAge() - p.Age(now)
}

// Stale reports whether the response's age has reached its freshness
// lifetime. A lifetime of zero is stale from the moment of receipt.
func (p *CachePolicy) Stale(now time.Time) bool {
	return p.MaxAge() <= p.Age(now)
}

// Storable reports whether this response may be written to the cache at
// all (RFC 7234 Section 3). It is independent of freshness: a storable
// response may well be stale already.
func (p *CachePolicy) Storable() bool {
	if p.reqDirectives.Has("no-store") || p.resDirectives.Has("no-store") {
		return false
	}
	// Methods beyond GET/HEAD are only stored when the response asks
	// for it explicitly.
	if p.method != http.MethodGet && p.method != http.MethodHead &&
		!(p.method == http.MethodPost && p.hasExplicitExpiration()) {
		return false
	}
	if !understoodStatus[p.status] {
		return false
	}
	if p.opt.Shared {
		if p.resDirectives.Has("private") && !p.resDirectives.Has("public") {
			return false
		}
		// Cookie-setting responses are technically cacheable but
		// sharing them between users leaks sessions, unless the server
		// opted in explicitly.
		if _, hasCookie := p.resHeaders["set-cookie"]; hasCookie &&
			!p.resDirectives.Has("public") && !p.resDirectives.Has("immutable") {
			return false
		}
		if !p.noAuth && !p.allowsStoringAuthenticated() {
			return false
		}
	}
	return p.resDirectives.Has("public") ||
		(!p.opt.Shared && p.resDirectives.Has("private")) ||
		p.hasExplicitExpiration() ||
		cacheableByDefaultStatus[p.status]
}

// allowsStoringAuthenticated lists the response directives that permit a
// shared cache to store a response to a request with Authorization
// (RFC 7234 Section 3.2).
func (p *CachePolicy) allowsStoringAuthenticated() bool {
	return p.resDirectives.Has("s-maxage") ||
		p.resDirectives.Has("must-revalidate") ||
		p.resDirectives.Has("public")
}

func durationMax(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

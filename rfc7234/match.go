package rfc7234

import (
	"net/http"
	"strings"
	"time"
)

// requestMatches reports whether the new request addresses the same
// resource as the request that produced the stored response: same URL
// (query-string sensitive), same host, same method, and compatible Vary
// fields. A HEAD request may match a stored GET when allowHead is set,
// which is the revalidation-via-HEAD case of RFC 7234 Section 4.3.5.
func (p *CachePolicy) requestMatches(req Request, allowHead bool) bool {
	if p.url != "" && p.url != req.URL {
		return false
	}
	if p.host != req.host() {
		return false
	}
	method := strings.ToUpper(req.Method)
	if method != "" && method != p.method && !(allowHead && method == http.MethodHead) {
		return false
	}
	return p.varyMatches(req)
}

// varyMatches checks Vary compatibility (RFC 7234 Section 4.1): every
// header field the stored response's Vary names must be present-or-absent
// identically on both requests and, when present, equal. Field names
// compare case-insensitively, values case-sensitively. "Vary: *" never
// matches.
func (p *CachePolicy) varyMatches(req Request) bool {
	vary := strings.TrimSpace(p.resHeaders["vary"])
	if vary == "" {
		return true
	}
	if vary == "*" {
		return false
	}
	for _, field := range strings.Split(strings.ToLower(vary), ",") {
		name := strings.TrimSpace(field)
		if name == "" {
			continue
		}
		// Join repeated field lines the same way the stored snapshot
		// was flattened, so a request matches its own stored variant.
		if strings.Join(req.Header.Values(name), ", ") != p.reqHeaders[name] {
			return false
		}
	}
	return true
}

// SatisfiesWithoutRevalidation decides whether the stored response may
// be served for the new request without contacting the origin
// (RFC 7234 Section 4). Request directives override plain staleness:
// no-cache forces revalidation, max-stale tolerates expired responses up
// to its bound (unless the response demands revalidation), min-fresh
// demands a remaining lifetime. When it returns false the caller
// forwards the request, typically with RevalidationHeaders.
func (p *CachePolicy) SatisfiesWithoutRevalidation(req Request, now time.Time) bool {
	cc := ParseCacheControl(strings.Join(req.Header.Values("Cache-Control"), ", "))

	if cc.Has("no-cache") || strings.Contains(strings.Join(req.Header.Values("Pragma"), ", "), "no-cache") {
		return false
	}
	if maxAge, ok := cc.Seconds("max-age"); ok && p.Age(now) > maxAge {
		return false
	}
	if minFresh, ok := cc.Seconds("min-fresh"); ok && p.TimeToLive(now) < minFresh {
		return false
	}

	if p.Stale(now) {
		allowsStale := cc.Has("max-stale") &&
			!p.resDirectives.Has("must-revalidate") &&
			!(p.opt.Shared && p.resDirectives.Has("proxy-revalidate"))
		if allowsStale {
			// max-stale without an argument accepts any staleness.
			if bound, ok := cc.Seconds("max-stale"); ok {
				allowsStale = p.Age(now)-p.MaxAge() < bound
			}
		}
		if !allowsStale {
			return false
		}
	}

	return p.requestMatches(req, false)
}

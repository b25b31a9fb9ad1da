// Package rfc7234 decides whether an HTTP response may be stored by a
// cache, whether a stored response can satisfy a later request without
// contacting the origin, and how a stored response is revalidated and
// merged after a conditional request, per RFC 7234.
//
// The package owns no storage, transport, or clock: a CachePolicy is a
// deterministic value built from request and response snapshots plus a
// timestamp captured exactly once, and every query threads "now" in
// explicitly so that results are reproducible. Callers that want to keep
// a policy across processes serialize it with Snapshot and rebuild it
// with FromSnapshot.
package rfc7234

import (
	"net/http"
	"strings"
	"time"
)

// Options configures a CachePolicy once, at construction.
// The zero value is a non-shared cache that trusts only its local clock
// and applies no heuristic or immutable freshness; use DefaultOptions
// for the usual starting point.
type Options struct {
	// Shared marks the cache as serving multiple users (proxy, CDN
	// edge). Shared caches honor s-maxage and refuse private responses.
	Shared bool
	// IgnoreCargoCult removes the meaningless pre-check/post-check
	// directive pairs that some servers copy-paste into Cache-Control,
	// together with the no-cache/no-store noise that tends to travel
	// with them.
	IgnoreCargoCult bool
	// TrustServerDate uses the response Date header as the time base
	// for freshness arithmetic when it is within clock-drift tolerance,
	// instead of the local receive time alone.
	TrustServerDate bool
	// CacheHeuristic is the fraction of the response's Last-Modified
	// age used as a fallback freshness lifetime when the response has
	// no explicit expiration.
	CacheHeuristic float64
	// ImmutableMinTTL is the floor freshness lifetime applied to
	// responses carrying the immutable directive.
	ImmutableMinTTL time.Duration
}

// DefaultOptions returns the configuration of a shared cache with the
// conventional 10% Last-Modified heuristic and a one-day immutable floor.
func DefaultOptions() Options {
	return Options{
		Shared:          true,
		TrustServerDate: true,
		CacheHeuristic:  0.1,
		ImmutableMinTTL: 24 * time.Hour,
	}
}

// Request is the snapshot of a request as seen by the cache.
// Host may be left empty, in which case the Host header is used.
type Request struct {
	Method string
	URL    string
	Host   string
	Header http.Header
}

// SnapshotRequest captures the caching-relevant parts of an
// *http.Request.
func SnapshotRequest(r *http.Request) Request {
	req := Request{
		Method: r.Method,
		Host:   r.Host,
		Header: r.Header,
	}
	if r.URL != nil {
		req.URL = r.URL.RequestURI()
	}
	return req
}

func (r Request) host() string {
	if r.Host != "" {
		return r.Host
	}
	return r.Header.Get("Host")
}

// Response is the snapshot of a response as seen by the cache.
type Response struct {
	Status int
	Header http.Header
}

// SnapshotResponse captures the caching-relevant parts of an
// *http.Response.
func SnapshotResponse(r *http.Response) Response {
	return Response{Status: r.StatusCode, Header: r.Header}
}

// headerMap is the engine's internal header representation: lowercase
// field names, multiple field lines joined with ", ". It keeps header
// snapshots flat so they serialize losslessly into a string map.
type headerMap map[string]string

func newHeaderMap(h http.Header) headerMap {
	m := make(headerMap, len(h))
	for name, values := range h {
		m[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return m
}

func (m headerMap) httpHeader() http.Header {
	h := make(http.Header, len(m))
	for name, value := range m {
		h.Set(name, value)
	}
	return h
}

func (m headerMap) clone() headerMap {
	out := make(headerMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CachePolicy holds everything needed to answer storability, freshness,
// and revalidation questions about one stored response. It is immutable
// after construction; revalidation produces a new policy instead of
// mutating the old one, so a policy may be shared freely across
// goroutines for reads.
type CachePolicy struct {
	opt           Options
	responseTime  time.Time
	method        string
	url           string
	host          string
	noAuth        bool
	status        int
	reqHeaders    headerMap
	resHeaders    headerMap
	reqDirectives Directives
	resDirectives Directives
}

// NewPolicy builds a policy from a request/response pair and the instant
// the response was received. The timestamp is captured exactly once;
// it is never re-read, so all derived ages are stable.
func NewPolicy(req Request, res Response, now time.Time, opt Options) *CachePolicy {
	if now.IsZero() {
		panic("rfc7234: NewPolicy called with zero time")
	}

	p := &CachePolicy{
		opt:          opt,
		responseTime: now,
		method:       strings.ToUpper(req.Method),
		url:          req.URL,
		host:         req.host(),
		noAuth:       req.Header.Get("Authorization") == "",
		status:       res.Status,
		resHeaders:   newHeaderMap(res.Header),
	}
	if p.method == "" {
		p.method = http.MethodGet
	}
	if p.status == 0 {
		// A response with no status gets the least cacheable
		// treatment an understood status allows.
		p.status = http.StatusNotImplemented
	}

	p.resDirectives = ParseCacheControl(p.resHeaders["cache-control"])
	p.stripCargoCult()

	// Pragma is only a fallback for servers old enough to predate
	// Cache-Control entirely. A present-but-blank Cache-Control header
	// already shows the server knows the field, so Pragma is ignored.
	if _, hasCC := p.resHeaders["cache-control"]; !hasCC {
		if strings.Contains(p.resHeaders["pragma"], "no-cache") {
			p.resDirectives["no-cache"] = ""
		}
	}

	p.reqHeaders = trimRequestHeaders(req.Header, p.resHeaders["vary"])
	p.reqDirectives = ParseCacheControl(p.reqHeaders["cache-control"])

	return p
}

// stripCargoCult drops the pre-check/post-check directive pair and the
// no-cache/no-store noise it usually travels with, and rewrites the
// stored Cache-Control header to match. Only applies when both halves of
// the pair are present; a lone pre-check may be intentional.
func (p *CachePolicy) stripCargoCult() {
	if !p.opt.IgnoreCargoCult || !p.resDirectives.Has("pre-check") || !p.resDirectives.Has("post-check") {
		return
	}
	delete(p.resDirectives, "pre-check")
	delete(p.resDirectives, "post-check")
	delete(p.resDirectives, "no-cache")
	delete(p.resDirectives, "no-store")
	delete(p.resDirectives, "must-revalidate")
	p.resHeaders["cache-control"] = p.resDirectives.String()
	delete(p.resHeaders, "expires")
	delete(p.resHeaders, "pragma")
}

// trimRequestHeaders keeps only the request header fields the policy
// ever reads back: the caching directives and whatever the response's
// Vary field nominates. Everything else belongs to the caller.
func trimRequestHeaders(h http.Header, vary string) headerMap {
	all := newHeaderMap(h)
	kept := headerMap{}
	for _, name := range []string{"host", "cache-control", "pragma"} {
		if v, ok := all[name]; ok {
			kept[name] = v
		}
	}
	for _, field := range strings.Split(strings.ToLower(vary), ",") {
		name := strings.TrimSpace(field)
		if name == "" || name == "*" {
			continue
		}
		if v, ok := all[name]; ok {
			kept[name] = v
		}
	}
	return kept
}

package semcache

import (
	"fmt"
	"strings"
)

// FwdReason is a Cache-Status forward reason as registered by RFC 9211.
type FwdReason string

const (
	FwdReasonUriMiss  FwdReason = "uri-miss"
	FwdReasonVaryMiss FwdReason = "vary-miss"
	FwdReasonMiss     FwdReason = "miss"
	FwdReasonRequest  FwdReason = "request"
	FwdReasonStale    FwdReason = "stale"
	FwdReasonMethod   FwdReason = "method"
)

// CacheStatus accumulates the parameters of one Cache-Status header
// entry (RFC 9211) while a request is being handled.
type CacheStatus struct {
	hit        bool
	FwdReason  FwdReason
	FwdStatus  int
	TimeToLive int
	Stored     bool
}

// Hit marks the request as served from the cache with the given
// remaining freshness in seconds.
func (s *CacheStatus) Hit(ttl int) {
	s.hit = true
	s.FwdReason = ""
	s.TimeToLive = ttl
}

// Forward records why the request had to go to the origin.
// Only the first reason is kept.
func (s *CacheStatus) Forward(reason FwdReason) {
	if s.FwdReason == "" {
		s.FwdReason = reason
	}
}

// String renders the header value, e.g. "semcache; hit; ttl=300" or
// "semcache; fwd=stale; fwd-status=304; stored".
func (s CacheStatus) String() string {
	var b strings.Builder
	b.WriteString("semcache")
	if s.hit {
		b.WriteString("; hit")
		fmt.Fprintf(&b, "; ttl=%d", s.TimeToLive)
		return b.String()
	}
	if s.FwdReason != "" {
		fmt.Fprintf(&b, "; fwd=%s", s.FwdReason)
	}
	if s.FwdStatus != 0 {
		fmt.Fprintf(&b, "; fwd-status=%d", s.FwdStatus)
	}
	if s.Stored {
		b.WriteString("; stored")
	}
	return b.String()
}

package rfc7234

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// snapshotVersion guards against thawing maps produced by a different
// layout of this package.
const snapshotVersion = "1"

const (
	reqHeaderPrefix = "reqh."
	resHeaderPrefix = "resh."
)

// Snapshot flattens the policy into a plain string map so that "shall I
// trust this response again" state can be persisted and shipped across
// processes without depending on any header-container type. The map
// round-trips through FromSnapshot.
func (p *CachePolicy) Snapshot() map[string]string {
	m := map[string]string{
		"v":   snapshotVersion,
		"t":   strconv.FormatInt(p.responseTime.UnixMilli(), 10),
		"st":  strconv.Itoa(p.status),
		"m":   p.method,
		"u":   p.url,
		"h":   p.host,
		"a":   strconv.FormatBool(p.noAuth),
		"sh":  strconv.FormatBool(p.opt.Shared),
		"icc": strconv.FormatBool(p.opt.IgnoreCargoCult),
		"tsd": strconv.FormatBool(p.opt.TrustServerDate),
		"ch":  strconv.FormatFloat(p.opt.CacheHeuristic, 'g', -1, 64),
		"imm": strconv.FormatInt(int64(p.opt.ImmutableMinTTL/time.Second), 10),
	}
	for name, value := range p.reqHeaders {
		m[reqHeaderPrefix+name] = value
	}
	for name, value := range p.resHeaders {
		m[resHeaderPrefix+name] = value
	}
	return m
}

// FromSnapshot rebuilds a policy from a map produced by Snapshot.
// Unlike header parsing, a malformed snapshot is a programming error on
// the caller's side (wrong map, wrong version), so it is reported.
func FromSnapshot(m map[string]string) (*CachePolicy, error) {
	if v := m["v"]; v != snapshotVersion {
		return nil, fmt.Errorf("rfc7234: unsupported policy snapshot version %q", v)
	}

	millis, err := strconv.ParseInt(m["t"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("rfc7234: invalid snapshot response time: %w", err)
	}
	status, err := strconv.Atoi(m["st"])
	if err != nil {
		return nil, fmt.Errorf("rfc7234: invalid snapshot status: %w", err)
	}
	heuristic, err := strconv.ParseFloat(m["ch"], 64)
	if err != nil {
		return nil, fmt.Errorf("rfc7234: invalid snapshot heuristic: %w", err)
	}
	immutableTTL, err := strconv.ParseInt(m["imm"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("rfc7234: invalid snapshot immutable ttl: %w", err)
	}

	p := &CachePolicy{
		opt: Options{
			Shared:          m["sh"] == "true",
			IgnoreCargoCult: m["icc"] == "true",
			TrustServerDate: m["tsd"] == "true",
			CacheHeuristic:  heuristic,
			ImmutableMinTTL: time.Duration(immutableTTL) * time.Second,
		},
		responseTime: time.UnixMilli(millis),
		status:       status,
		method:       m["m"],
		url:          m["u"],
		host:         m["h"],
		noAuth:       m["a"] == "true",
		reqHeaders:   headerMap{},
		resHeaders:   headerMap{},
	}

	for key, value := range m {
		switch {
		case strings.HasPrefix(key, reqHeaderPrefix):
			p.reqHeaders[key[len(reqHeaderPrefix):]] = value
		case strings.HasPrefix(key, resHeaderPrefix):
			p.resHeaders[key[len(resHeaderPrefix):]] = value
		}
	}

	// Directives are derived state: the snapshot stores the headers as
	// constructed (cargo-cult cleanup already applied), so reparsing
	// reproduces the original maps, including the Pragma fallback.
	p.resDirectives = ParseCacheControl(p.resHeaders["cache-control"])
	if _, hasCC := p.resHeaders["cache-control"]; !hasCC {
		if strings.Contains(p.resHeaders["pragma"], "no-cache") {
			p.resDirectives["no-cache"] = ""
		}
	}
	p.reqDirectives = ParseCacheControl(p.reqHeaders["cache-control"])

	return p, nil
}

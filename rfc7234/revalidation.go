package rfc7234

import (
	"net/http"
	"strings"
	"time"
)

// RevalidationHeaders builds the header set for a conditional refresh of
// the stored response (RFC 7234 Section 4.3.1): the new request's
// forwardable headers plus If-None-Match and/or If-Modified-Since from
// the stored validators. If the stored response has no validators the
// caller simply gets an unconditional request and a full response back.
func (p *CachePolicy) RevalidationHeaders(req Request) http.Header {
	headers := copyWithoutHopByHop(newHeaderMap(req.Header))

	// Range requests are not understood, so never ask for a subrange
	// validation.
	delete(headers, "if-range")

	if !p.requestMatches(req, true) || !p.Storable() {
		// Different resource, or one we were never allowed to store:
		// forward as an unconditional request.
		delete(headers, "if-none-match")
		delete(headers, "if-modified-since")
		return headers.httpHeader()
	}

	if etag := p.resHeaders["etag"]; etag != "" {
		if existing := headers["if-none-match"]; existing != "" {
			headers["if-none-match"] = existing + ", " + etag
		} else {
			headers["if-none-match"] = etag
		}
	}

	// Weak validators are only usable on plain GET validation requests
	// (RFC 7232 Section 2.3); anything range-flavored or non-GET must
	// use strong validators exclusively.
	forbidsWeakValidators := headers["accept-ranges"] != "" ||
		headers["if-match"] != "" ||
		headers["if-unmodified-since"] != "" ||
		p.method != http.MethodGet

	if forbidsWeakValidators {
		delete(headers, "if-modified-since")
		if etags := headers["if-none-match"]; etags != "" {
			strong := make([]string, 0, 2)
			for _, etag := range strings.Split(etags, ",") {
				etag = strings.TrimSpace(etag)
				if etag != "" && !strings.HasPrefix(etag, "W/") {
					strong = append(strong, etag)
				}
			}
			if len(strong) == 0 {
				delete(headers, "if-none-match")
			} else {
				headers["if-none-match"] = strings.Join(strong, ", ")
			}
		}
	} else if lastModified := p.resHeaders["last-modified"]; lastModified != "" && headers["if-modified-since"] == "" {
		headers["if-modified-since"] = lastModified
	}

	return headers.httpHeader()
}

// Revalidated interprets the origin's answer to a refresh attempt and
// returns the replacement policy plus whether the cached body is still
// valid (RFC 7234 Section 4.3.3).
//
// The cached body remains valid when the origin answered 304, or when
// the new response carries the same validator as the stored one. In that
// case the returned policy keeps the stored status and merges headers:
// every header on the new response overwrites the stored one, except the
// entity-describing set, which a bodyless 304 cannot speak for. On an
// invalid revalidation the new response replaces the stored one
// wholesale and the caller must discard the cached body.
func (p *CachePolicy) Revalidated(req Request, res Response, now time.Time) (*CachePolicy, bool) {
	if res.Header == nil {
		panic("rfc7234: Revalidated called with nil response headers")
	}

	notModified := res.Status == 0 || res.Status == http.StatusNotModified
	if !notModified && !p.validatorsMatch(res) {
		return NewPolicy(req, res, now, p.opt), false
	}

	merged := p.resHeaders.clone()
	for name, value := range newHeaderMap(res.Header) {
		if !excludedFromRevalidationUpdate[name] {
			merged[name] = value
		}
	}

	status := res.Status
	if notModified {
		status = p.status
	}
	return NewPolicy(req, Response{Status: status, Header: merged.httpHeader()}, now, p.opt), true
}

// validatorsMatch reports whether the new response demonstrably
// represents the same entity as the stored one. ETags compare exactly,
// with the weak prefix ignored for safe methods only; when either side
// lacks an ETag, Last-Modified must match exactly. A full response with
// no validators on either side demonstrates nothing and never matches;
// only a 304 may freshen a validator-less response.
func (p *CachePolicy) validatorsMatch(res Response) bool {
	storedTag := strings.TrimSpace(p.resHeaders["etag"])
	newTag := strings.TrimSpace(res.Header.Get("Etag"))

	if storedTag != "" && newTag != "" {
		if p.method != http.MethodGet && p.method != http.MethodHead {
			// Unsafe methods require a strong comparison.
			return !isWeakETag(storedTag) && !isWeakETag(newTag) && storedTag == newTag
		}
		return trimWeak(storedTag) == trimWeak(newTag)
	}
	if storedTag != "" || newTag != "" {
		return false
	}

	storedLM := p.resHeaders["last-modified"]
	newLM := res.Header.Get("Last-Modified")
	return storedLM != "" && storedLM == newLM
}

func isWeakETag(etag string) bool {
	return strings.HasPrefix(etag, "W/")
}

func trimWeak(etag string) string {
	return strings.TrimPrefix(etag, "W/")
}

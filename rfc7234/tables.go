package rfc7234

// Status codes that are cacheable by default, i.e. reusable without an
// explicit freshness directive on the response (RFC 7231 Section 6.1).
var cacheableByDefaultStatus = map[int]bool{
	200: true,
	203: true,
	204: true,
	206: true,
	300: true,
	301: true,
	404: true,
	405: true,
	410: true,
	414: true,
	501: true,
}

// Status codes this cache understands and implements all caching-related
// behavior for. Responses with other status codes are never stored.
// 206 is excluded because partial content is not combined, and 303 because
// its semantics depend on the request that produced it.
var understoodStatus = map[int]bool{
	200: true,
	203: true,
	204: true,
	300: true,
	301: true,
	302: true,
	307: true,
	308: true,
	404: true,
	405: true,
	410: true,
	414: true,
	501: true,
}

// Hop-by-hop header fields are meaningful only for a single transport
// connection and are stripped when a stored response is handed back
// (RFC 7230 Section 6.1). Date is listed so that it gets removed and
// re-added with the time the response is served.
var hopByHopHeaders = map[string]bool{
	"date":                true,
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

// Header fields describing the entity body. A 304 carries no body, so
// these are never taken from the revalidation response when a stored
// response is freshened (RFC 7234 Section 4.3.4).
var excludedFromRevalidationUpdate = map[string]bool{
	"content-length":    true,
	"content-encoding":  true,
	"transfer-encoding": true,
	"content-range":     true,
}

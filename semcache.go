// Package semcache is a caching reverse proxy middleware built on the
// rfc7234 decision engine. It stores full responses together with their
// policy snapshots and answers later requests from the store whenever
// the policy allows, revalidating stale entries with conditional
// requests.
package semcache

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/semcache/semcache/policystore"
	"github.com/semcache/semcache/rfc7234"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config collects everything a Cache needs.
type Config struct {
	// Store persists the cached exchanges. Required.
	Store policystore.Store
	// OriginURL is the upstream server requests are forwarded to. Required.
	OriginURL url.URL
	// OriginHost overrides the Host header (and TLS server name) used
	// when contacting the origin.
	OriginHost string
	// Options configures the decision engine. Nil means DefaultOptions.
	Options *rfc7234.Options
	// PurgeInterval enables the background loop that evicts expired
	// entries. Zero disables it.
	PurgeInterval time.Duration
}

// Cache is a caching http.Handler in front of a single origin.
type Cache struct {
	store      policystore.Store
	originURL  url.URL
	originHost string
	opt        rfc7234.Options
	keys       keyer
	httpClient http.Client
}

// New initializes the caching middleware for the given origin.
func New(config Config) *Cache {
	opt := rfc7234.DefaultOptions()
	if config.Options != nil {
		opt = *config.Options
	}
	c := &Cache{
		store:      config.Store,
		originURL:  config.OriginURL,
		originHost: config.OriginHost,
		opt:        opt,
		keys:       keyer{originID: config.OriginURL.Host},
		httpClient: http.Client{
			// do not follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}

	// start a goroutine to purge expired entries
	if config.PurgeInterval != 0 {
		go c.purgeExpired(config.PurgeInterval)
	}

	return c
}

// purgeExpired runs an infinite loop evicting expired entries, one at a
// time, oldest first. Entries whose expiry has not arrived yet make the
// loop sleep for the configured interval.
func (c *Cache) purgeExpired(interval time.Duration) {
	log.Info().Msgf("Starting expiry purge loop with interval %s", interval)
	for {
		key, expiry, err := c.store.Oldest("")
		if err != nil {
			log.Error().Err(err).Msg("Could not get oldest entry")
			time.Sleep(interval)
			continue
		}
		if key != "" && time.Now().After(expiry) {
			log.Trace().Str("key", key).Time("expiry", expiry).Msg("Purging expired entry")
			c.store.Purge(key)
			continue
		}
		time.Sleep(interval)
	}
}

// ServeHTTP implements the http.Handler interface.
func (c *Cache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer c.recover(w, r)
	c.handle(w, r)
}

// recover recovers from panics and sends the response to the escape hatch if needed.
func (c *Cache) recover(w http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		log.WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in cache handler")
		c.escapeHatch(w, r)
	}
}

// escapeHatch is a fallback handler that just proxies the request to the origin.
func (c *Cache) escapeHatch(w http.ResponseWriter, r *http.Request) {
	res, _, err := c.fetch(r, r.Header)
	if err != nil {
		log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(w, "Could not connect to origin", http.StatusBadGateway)
		return
	}
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		log.Error().Err(err).Msg("Error writing to client")
	}
}

// variant is one stored response variant together with its rebuilt policy.
type variant struct {
	key    string
	entry  policystore.Entry
	policy *rfc7234.CachePolicy
}

func (c *Cache) handle(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	keyPrefix := c.keys.prefix(r)

	log := log.With().Str("key", keyPrefix).Logger()
	log.Trace().Interface("headers", r.Header).Msgf("Incoming request: %s %s", r.Method, r.URL.Path)

	req := rfc7234.SnapshotRequest(r)
	var status CacheStatus
	var revalidate *variant

	variants := c.variants(keyPrefix)
	for i := range variants {
		v := &variants[i]
		if v.policy.SatisfiesWithoutRevalidation(req, now) {
			status.Hit(int(v.policy.TimeToLive(now) / time.Second))
			c.send(w, v.policy.Status(), v.policy.ResponseHeaders(now), v.entry.Body, status, log)
			return
		}
		// a stale entry for the same variant can still be served if the
		// origin confirms it with a 304
		if revalidate == nil && v.key == c.keys.withVary(keyPrefix, r, v.policy.ResponseHeaders(now)) {
			revalidate = v
		}
	}
	if revalidate != nil {
		status.Forward(FwdReasonStale)
	} else if len(variants) > 0 {
		status.Forward(FwdReasonVaryMiss)
	} else {
		status.Forward(FwdReasonUriMiss)
	}

	outHeader := r.Header
	if revalidate != nil {
		outHeader = revalidate.policy.RevalidationHeaders(req)
	}

	log.Trace().Msg("Forwarding to origin")
	originRes, responseTime, err := c.fetch(r, outHeader)
	if err != nil {
		log.Error().Err(err).Msg("Could not fetch response from origin")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	defer originRes.Body.Close()
	res := rfc7234.SnapshotResponse(originRes)

	if revalidate != nil {
		merged, valid := revalidate.policy.Revalidated(req, res, responseTime)
		status.FwdStatus = originRes.StatusCode
		if valid && originRes.StatusCode == http.StatusNotModified {
			entry := revalidate.entry
			entry.Policy = merged.Snapshot()
			entry.Expires = responseTime.Add(merged.TimeToLive(responseTime))
			if err := c.store.Put(entry); err != nil {
				log.Error().Err(err).Str("key", entry.Key).Msg("Could not write to cache")
			} else {
				status.Stored = true
			}
			c.send(w, merged.Status(), merged.ResponseHeaders(responseTime), entry.Body, status, log)
			return
		}
	}

	body, err := io.ReadAll(originRes.Body)
	if err != nil {
		log.Error().Err(err).Msg("Could not read origin response")
		http.Error(w, "Error reading origin response", http.StatusBadGateway)
		return
	}

	policy := rfc7234.NewPolicy(req, res, responseTime, c.opt)
	if policy.Storable() {
		key := c.keys.withVary(keyPrefix, r, originRes.Header)
		entry := policystore.Entry{
			Key:     key,
			Expires: responseTime.Add(policy.TimeToLive(responseTime)),
			Policy:  policy.Snapshot(),
			Body:    body,
		}
		if err := c.store.Put(entry); err != nil {
			log.Error().Err(err).Str("key", key).Msg("Could not write to cache")
		} else {
			status.Stored = true
			log.Trace().Str("key", key).Time("expiry", entry.Expires).Msg("Cache write")
		}
	}

	c.invalidateIfNeeded(r, originRes)

	c.send(w, originRes.StatusCode, originRes.Header, body, status, log)
}

// variants loads every stored variant for a key prefix, dropping
// entries whose snapshots no longer parse.
func (c *Cache) variants(prefix string) []variant {
	var keys []string
	c.store.AllKeys(prefix, func(key string) { keys = append(keys, key) })
	variants := make([]variant, 0, len(keys))
	for _, key := range keys {
		entry, ok, err := c.store.Get(key)
		if err != nil || !ok {
			continue
		}
		policy, err := rfc7234.FromSnapshot(entry.Policy)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
			c.store.Purge(key)
			continue
		}
		variants = append(variants, variant{key: key, entry: entry, policy: policy})
	}
	return variants
}

// invalidateIfNeeded purges stored GET and HEAD variants of a resource
// after an unsafe request on it gets a non-error response
// (RFC 7234 Section 4.4).
func (c *Cache) invalidateIfNeeded(r *http.Request, res *http.Response) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return
	}
	if res.StatusCode >= 400 {
		return
	}
	for _, method := range []string{http.MethodGet, http.MethodHead} {
		prefix := method + ":" + c.keys.originID + r.URL.RequestURI() + "\t"
		var keys []string
		c.store.AllKeys(prefix, func(key string) { keys = append(keys, key) })
		for _, key := range keys {
			log.Trace().Str("key", key).Msg("Invalidating stored response")
			c.store.Purge(key)
		}
	}
}

// fetch forwards the incoming request to the origin with the given
// headers and returns the response along with the time it was received.
func (c *Cache) fetch(r *http.Request, header http.Header) (*http.Response, time.Time, error) {
	uri := c.originURL.String() + r.URL.RequestURI()
	// need to specifically set body to nil on the outgoing request if content is zero length
	// see https://github.com/golang/go/issues/16036
	body := r.Body
	if r.ContentLength == 0 {
		body = nil
	}
	req, err := http.NewRequest(r.Method, uri, body)
	if err != nil {
		return nil, time.Time{}, err
	}
	req.Host = c.originHost
	copyHeader(req.Header, header)
	// do not forward connection-scoped headers
	req.Header.Del("Connection")

	res, err := c.httpClient.Do(req)
	responseTime := time.Now()
	if err != nil {
		return nil, responseTime, err
	}
	// as per https://www.rfc-editor.org/rfc/rfc9110#section-6.6.1-8
	if res.Header.Get("Date") == "" {
		res.Header.Set("Date", responseTime.UTC().Format(http.TimeFormat))
	}
	return res, responseTime, nil
}

func (c *Cache) send(w http.ResponseWriter, statusCode int, header http.Header, body []byte, status CacheStatus, log zerolog.Logger) {
	isHit := 0
	if status.FwdReason == "" {
		isHit = 1
	}
	log.Debug().
		Str("fwd", string(status.FwdReason)).
		Bool("stored", status.Stored).
		Int("ttl", status.TimeToLive).
		Int("hit", isHit).
		Msg("Sending response to client")

	copyHeader(w.Header(), header)
	w.Header().Add("Cache-Status", status.String())
	w.WriteHeader(statusCode)
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		log.Error().Err(err).Msg("Error writing to client")
	}
}

// copyHeader copies all fields from one http.Header to another, minus
// the forwarding headers some upstream proxies inject.
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		if strings.HasPrefix(k, "X-Forwarded-") {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

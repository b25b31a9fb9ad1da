package semcache

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/semcache/semcache/policystore"
	"github.com/semcache/semcache/rfc7234"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func init() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout}).Level(zerolog.WarnLevel)
}

func startCache(t *testing.T, origin http.Handler, opt *rfc7234.Options) (*Cache, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(origin)
	t.Cleanup(server.Close)
	originURL, err := url.Parse(server.URL)
	if err != nil {
		t.Fatalf("could not parse origin url: %v", err)
	}
	cache := New(Config{
		Store:     policystore.NewMemoryStore(),
		OriginURL: *originURL,
		Options:   opt,
	})
	return cache, server
}

func get(cache *Cache, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	for name, values := range header {
		req.Header[name] = values
	}
	rec := httptest.NewRecorder()
	cache.ServeHTTP(rec, req)
	return rec
}

func TestMissThenHit(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/page", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "max-age=60")
		fmt.Fprintf(w, "served %d times", handleCount)
	})
	cache, _ := startCache(t, router, nil)

	first := get(cache, "/page", nil)
	if !strings.Contains(first.Header().Get("Cache-Status"), "fwd=uri-miss") {
		t.Errorf("first response should be a miss: %q", first.Header().Get("Cache-Status"))
	}
	if !strings.Contains(first.Header().Get("Cache-Status"), "stored") {
		t.Errorf("first response should be stored: %q", first.Header().Get("Cache-Status"))
	}

	second := get(cache, "/page", nil)
	if !strings.Contains(second.Header().Get("Cache-Status"), "hit") {
		t.Errorf("second response should be a hit: %q", second.Header().Get("Cache-Status"))
	}
	if body, _ := io.ReadAll(second.Result().Body); string(body) != "served 1 times" {
		t.Errorf("hit should serve the stored body, got %q", body)
	}
	if handleCount != 1 {
		t.Errorf("origin called %d times, expected 1", handleCount)
	}
}

func TestNoStoreNotCached(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/private", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "no-store")
		io.WriteString(w, "fresh every time")
	})
	cache, _ := startCache(t, router, nil)

	get(cache, "/private", nil)
	res := get(cache, "/private", nil)
	if handleCount != 2 {
		t.Errorf("origin called %d times, expected 2", handleCount)
	}
	if strings.Contains(res.Header().Get("Cache-Status"), "stored") {
		t.Errorf("no-store response must not be stored: %q", res.Header().Get("Cache-Status"))
	}
}

func TestPrivateNotStoredBySharedCache(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/me", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "private, max-age=60")
		io.WriteString(w, "user data")
	})
	cache, _ := startCache(t, router, nil)

	get(cache, "/me", nil)
	get(cache, "/me", nil)
	if handleCount != 2 {
		t.Errorf("origin called %d times, expected 2", handleCount)
	}
}

func TestVaryVariantsStoredSeparately(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/greeting", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "max-age=60")
		w.Header().Set("Vary", "X-Lang")
		io.WriteString(w, "hello in "+r.Header.Get("X-Lang"))
	})
	cache, _ := startCache(t, router, nil)

	english := http.Header{"X-Lang": {"en"}}
	finnish := http.Header{"X-Lang": {"fi"}}

	get(cache, "/greeting", english)
	get(cache, "/greeting", finnish)
	if handleCount != 2 {
		t.Fatalf("each variant needs its own origin fetch, got %d", handleCount)
	}

	res := get(cache, "/greeting", english)
	if body, _ := io.ReadAll(res.Result().Body); string(body) != "hello in en" {
		t.Errorf("wrong variant served: %q", body)
	}
	res = get(cache, "/greeting", finnish)
	if body, _ := io.ReadAll(res.Result().Body); string(body) != "hello in fi" {
		t.Errorf("wrong variant served: %q", body)
	}
	if handleCount != 2 {
		t.Errorf("variants should now be hits, origin called %d times", handleCount)
	}
}

func TestStaleRevalidatedWith304(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/doc", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Cache-Control", "max-age=0")
		w.Header().Set("ETag", `"v1"`)
		io.WriteString(w, "document body")
	})
	cache, _ := startCache(t, router, nil)

	get(cache, "/doc", nil)

	res := get(cache, "/doc", nil)
	cacheStatus := res.Header().Get("Cache-Status")
	if !strings.Contains(cacheStatus, "fwd=stale") {
		t.Errorf("expected stale forward, got %q", cacheStatus)
	}
	if !strings.Contains(cacheStatus, "fwd-status=304") {
		t.Errorf("expected 304 from origin, got %q", cacheStatus)
	}
	if res.Code != http.StatusOK {
		t.Errorf("client should get the stored 200, got %d", res.Code)
	}
	if body, _ := io.ReadAll(res.Result().Body); string(body) != "document body" {
		t.Errorf("stored body should be served after revalidation, got %q", body)
	}
	if handleCount != 2 {
		t.Errorf("origin called %d times, expected 2", handleCount)
	}
}

func TestUnsafeMethodInvalidates(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/items", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "max-age=60")
		fmt.Fprintf(w, "list v%d", handleCount)
	})
	router.Post("/items", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	cache, _ := startCache(t, router, nil)

	get(cache, "/items", nil)
	get(cache, "/items", nil)
	if handleCount != 1 {
		t.Fatalf("list should be cached, origin called %d times", handleCount)
	}

	post := httptest.NewRequest("POST", "/items", nil)
	cache.ServeHTTP(httptest.NewRecorder(), post)

	res := get(cache, "/items", nil)
	if handleCount != 2 {
		t.Errorf("post should invalidate the stored list, origin called %d times", handleCount)
	}
	if body, _ := io.ReadAll(res.Result().Body); string(body) != "list v2" {
		t.Errorf("expected refetched list, got %q", body)
	}
}

func TestClientNoCacheForcesForward(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/fresh", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Cache-Control", "max-age=60")
		io.WriteString(w, "ok")
	})
	cache, _ := startCache(t, router, nil)

	get(cache, "/fresh", nil)
	get(cache, "/fresh", http.Header{"Cache-Control": {"no-cache"}})
	if handleCount != 2 {
		t.Errorf("no-cache request must reach the origin, called %d times", handleCount)
	}
}

func TestHeuristicFreshnessServesHit(t *testing.T) {
	handleCount := 0
	router := chi.NewRouter()
	router.Get("/old", func(w http.ResponseWriter, r *http.Request) {
		handleCount++
		w.Header().Set("Last-Modified", "Mon, 07 Mar 2016 11:52:56 GMT")
		io.WriteString(w, "ancient resource")
	})
	cache, _ := startCache(t, router, nil)

	get(cache, "/old", nil)
	res := get(cache, "/old", nil)
	if handleCount != 1 {
		t.Errorf("heuristically fresh response should be served from cache, origin called %d times", handleCount)
	}
	if !strings.Contains(res.Header().Get("Cache-Status"), "hit") {
		t.Errorf("expected hit, got %q", res.Header().Get("Cache-Status"))
	}
}

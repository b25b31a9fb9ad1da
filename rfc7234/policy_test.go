package rfc7234

import (
	"net/http"
	"time"
)

// Shared helpers for the package tests. All tests pin the clock so that
// every derived duration is exact.

var testNow = time.Date(2017, time.March, 1, 12, 0, 0, 0, time.UTC)

func h(pairs ...string) http.Header {
	header := http.Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		header.Set(pairs[i], pairs[i+1])
	}
	return header
}

func httpDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}

func privateOptions() Options {
	opt := DefaultOptions()
	opt.Shared = false
	return opt
}

func getPolicy(resHeader http.Header, opt Options) *CachePolicy {
	return NewPolicy(
		Request{Method: "GET", URL: "/", Header: http.Header{}},
		Response{Status: 200, Header: resHeader},
		testNow,
		opt,
	)
}

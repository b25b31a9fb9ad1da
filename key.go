package semcache

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
)

// keyer builds store keys for one origin. Keys are namespaced by origin
// id so that many origins can share a single store.
type keyer struct {
	originID string
}

// prefix returns the store key for a request without any vary suffix.
// All stored variants of a resource share the same prefix.
// For a GET request the prefix depends only on the URL; a POST request
// additionally hashes the request body, since responses to different
// payloads are different resources.
func (k keyer) prefix(r *http.Request) string {
	key := r.Method + ":" + k.originID + r.URL.RequestURI() + "\t"
	if r.Method == http.MethodPost {
		if hash := multipartHash(r); hash != "" {
			return key + hash
		} else if hash := bodyHash(r); hash != "" {
			return key + hash
		}
	}
	return key
}

// withVary appends the response's vary headers to a prefix, producing
// the full key one variant is stored under.
func (k keyer) withVary(prefix string, req *http.Request, resHeader http.Header) string {
	key := prefix
	for _, field := range strings.Split(resHeader.Get("Vary"), ",") {
		name := strings.TrimSpace(field)
		if name == "" || name == "*" {
			continue
		}
		if value := req.Header.Get(name); value != "" {
			key = key + "\n" + strings.ToLower(name) + ": " + value
		}
	}
	return key
}

// multipartHash returns the hash of the first part of a multipart
// request body, or an empty string if the request is not multipart.
// When it returns, the request body is rewound to the beginning.
func multipartHash(r *http.Request) string {
	mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		panic(err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	mr := multipart.NewReader(bytes.NewBuffer(body), params["boundary"])
	part, err := mr.NextPart()
	if err != nil {
		return ""
	}
	slurp, err := io.ReadAll(part)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%x", sha256.Sum256(slurp))
}

// bodyHash returns the hash of a request body.
// When it returns, the request body is rewound to the beginning.
func bodyHash(r *http.Request) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		panic(err)
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return ""
	}
	return fmt.Sprintf("%x", sha256.Sum256(body))
}

// Package twittertest provides an in-process fake of the REST API endpoints
// tweetharvest talks to, for use in tests.
package twittertest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	DefaultAppKey    = "test-key"
	DefaultAppSecret = "test-secret"
	DefaultToken     = "test-bearer-token"
)

// Server simulates the token, lookup, search and rate limit status endpoints.
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	appKey    string
	appSecret string
	token     string
	tweets    map[uint64]map[string]interface{}
	pages     [][]map[string]interface{}
	pageIdx   int
	limited   map[string]int // endpoint path -> remaining 429 responses
	failing   map[string]int // endpoint path -> remaining 500 responses
	resetAt   time.Time
	lookups   [][]uint64
	searches  []map[string]string
	requests  map[string]int
}

// NewServer starts a fake API accepting the default credentials.
func NewServer() *Server {
	s := &Server{
		appKey:    DefaultAppKey,
		appSecret: DefaultAppSecret,
		token:     DefaultToken,
		tweets:    make(map[uint64]map[string]interface{}),
		limited:   make(map[string]int),
		failing:   make(map[string]int),
		requests:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", s.handleToken)
	mux.HandleFunc("/1.1/statuses/lookup.json", s.authorized(s.handleLookup))
	mux.HandleFunc("/1.1/search/tweets.json", s.authorized(s.handleSearch))
	mux.HandleFunc("/1.1/application/rate_limit_status.json", s.authorized(s.handleRateLimitStatus))

	s.Server = httptest.NewServer(mux)
	return s
}

// BaseURL is the API root to configure clients with.
func (s *Server) BaseURL() string { return s.URL + "/1.1" }

// TokenURL is the token endpoint to configure clients with.
func (s *Server) TokenURL() string { return s.URL + "/oauth2/token" }

// AddTweets stores posts served by the lookup endpoint, keyed by their "id".
func (s *Server) AddTweets(tweets ...map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tweets {
		id, _ := strconv.ParseUint(t["id_str"].(string), 10, 64)
		s.tweets[id] = t
	}
}

// AddSearchPage queues one search response page. Pages are served in order;
// once exhausted, searches return no statuses.
func (s *Server) AddSearchPage(statuses ...map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, statuses)
}

// RateLimitNext makes the next n calls to path answer 429.
func (s *Server) RateLimitNext(path string, n int, resetAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limited[path] = n
	s.resetAt = resetAt
}

// FailNext makes the next n calls to path answer 500.
func (s *Server) FailNext(path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[path] = n
}

// LookupCalls returns the identifier list of every lookup request received.
func (s *Server) LookupCalls() [][]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]uint64, len(s.lookups))
	copy(out, s.lookups)
	return out
}

// SearchCalls returns the query parameters of every search request received.
func (s *Server) SearchCalls() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]string, len(s.searches))
	copy(out, s.searches)
	return out
}

// RequestCount returns how many requests hit path.
func (s *Server) RequestCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[path]
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.count(r.URL.Path)
	key, secret, ok := r.BasicAuth()
	if err := r.ParseForm(); err != nil || r.Method != http.MethodPost || r.PostForm.Get("grant_type") != "client_credentials" {
		writeErrors(w, http.StatusBadRequest, 170, "Missing required parameter: grant_type")
		return
	}
	s.mu.Lock()
	valid := ok && key == s.appKey && secret == s.appSecret
	token := s.token
	s.mu.Unlock()
	if !valid {
		writeErrors(w, http.StatusForbidden, 99, "Unable to verify your credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token_type": "bearer", "access_token": token})
}

func (s *Server) authorized(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.count(r.URL.Path)
		s.mu.Lock()
		want := "Bearer " + s.token
		s.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeErrors(w, http.StatusUnauthorized, 89, "Invalid or expired token.")
			return
		}
		if s.injectFailure(w, r.URL.Path) {
			return
		}
		next(w, r)
	}
}

// injectFailure answers with a queued 429 or 500 for path, if any.
func (s *Server) injectFailure(w http.ResponseWriter, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.limited[path] > 0 {
		s.limited[path]--
		writeErrors(w, http.StatusTooManyRequests, 88, "Rate limit exceeded")
		return true
	}
	if s.failing[path] > 0 {
		s.failing[path]--
		writeErrors(w, http.StatusInternalServerError, 131, "Internal error")
		return true
	}
	return false
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var ids []uint64
	for _, part := range strings.Split(r.URL.Query().Get("id"), ",") {
		if id, err := strconv.ParseUint(part, 10, 64); err == nil {
			ids = append(ids, id)
		}
	}

	s.mu.Lock()
	s.lookups = append(s.lookups, ids)
	found := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tweets[id]; ok {
			found = append(found, t)
		}
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := make(map[string]string, len(q))
	for k := range q {
		params[k] = q.Get(k)
	}

	s.mu.Lock()
	s.searches = append(s.searches, params)
	statuses := []map[string]interface{}{}
	if s.pageIdx < len(s.pages) {
		statuses = s.pages[s.pageIdx]
		s.pageIdx++
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"statuses": statuses,
		"search_metadata": map[string]interface{}{
			"count": len(statuses),
			"query": params["q"],
		},
	})
}

func (s *Server) handleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reset := s.resetAt
	s.mu.Unlock()

	entry := map[string]int64{"limit": 900, "remaining": 0, "reset": reset.Unix()}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resources": map[string]interface{}{
			"statuses": map[string]interface{}{"/statuses/lookup": entry},
			"search":   map[string]interface{}{"/search/tweets": entry},
		},
	})
}

func (s *Server) count(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[path]++
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrors(w http.ResponseWriter, status, code int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"errors": []map[string]interface{}{{"code": code, "message": msg}},
	})
}

// Status builds a minimal status object in the API's shape.
func Status(id uint64, text string) map[string]interface{} {
	idStr := strconv.FormatUint(id, 10)
	return map[string]interface{}{
		"id":                        id,
		"id_str":                    idStr,
		"text":                      text,
		"created_at":                "Wed Oct 10 20:19:24 +0000 2018",
		"lang":                      "en",
		"source":                    `<a href="https://example.com">web</a>`,
		"in_reply_to_screen_name":   nil,
		"in_reply_to_status_id_str": nil,
		"retweet_count":             1,
		"favorite_count":            2,
		"coordinates":               nil,
		"user": map[string]interface{}{
			"id_str":            "42",
			"screen_name":       "someone",
			"profile_image_url": "http://example.com/a.png",
			"followers_count":   7,
		},
	}
}

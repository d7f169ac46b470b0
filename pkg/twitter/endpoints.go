package twitter

import (
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultBaseURL is the REST API root, without trailing slash
	DefaultBaseURL = "https://api.twitter.com/1.1"

	// DefaultTokenURL issues app-only bearer tokens
	DefaultTokenURL = "https://api.twitter.com/oauth2/token"

	LookupPath          = "/statuses/lookup.json"
	SearchPath          = "/search/tweets.json"
	RateLimitStatusPath = "/application/rate_limit_status.json"

	// MaxLookupIDs is the most identifiers one lookup call accepts
	MaxLookupIDs = 100

	// MaxSearchCount is the largest search page the API serves
	MaxSearchCount = 100

	// TweetModeExtended asks for untruncated text in full_text
	TweetModeExtended = "extended"
)

// Resource names the rate-limit bucket an endpoint belongs to, as reported
// by the rate limit status endpoint.
type Resource struct {
	Name     string
	Endpoint string
}

var (
	LookupResource = Resource{Name: "statuses", Endpoint: "/statuses/lookup"}
	SearchResource = Resource{Name: "search", Endpoint: "/search/tweets"}
)

// SearchParams describes one search page request.
type SearchParams struct {
	Query string
	// MaxID bounds the page from above; 0 means unbounded
	MaxID      uint64
	Count      int
	TweetMode  string
	ResultType string
	Lang       string
}

// LookupURL builds the batch lookup URL for ids.
func LookupURL(baseURL string, ids []uint64, tweetMode string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}

	params := url.Values{}
	params.Set("id", strings.Join(parts, ","))
	if tweetMode != "" {
		params.Set("tweet_mode", tweetMode)
	}
	return baseURL + LookupPath + "?" + params.Encode()
}

// SearchURL builds the search URL for one page.
func SearchURL(baseURL string, p SearchParams) string {
	count := p.Count
	if count <= 0 || count > MaxSearchCount {
		count = MaxSearchCount
	}

	params := url.Values{}
	params.Set("q", p.Query)
	params.Set("count", strconv.Itoa(count))
	if p.MaxID > 0 {
		params.Set("max_id", strconv.FormatUint(p.MaxID, 10))
	}
	if p.TweetMode != "" {
		params.Set("tweet_mode", p.TweetMode)
	}
	if p.ResultType != "" {
		params.Set("result_type", p.ResultType)
	}
	if p.Lang != "" {
		params.Set("lang", p.Lang)
	}
	return baseURL + SearchPath + "?" + params.Encode()
}

// RateLimitStatusURL builds the rate limit status URL for the given resource families.
func RateLimitStatusURL(baseURL string, resources ...string) string {
	params := url.Values{}
	params.Set("resources", strings.Join(resources, ","))
	return baseURL + RateLimitStatusPath + "?" + params.Encode()
}

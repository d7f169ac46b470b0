package twitter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func TestDecodeRecords(t *testing.T) {
	body := []byte(`[
		{"id": 20, "id_str": "20", "text": "hi", "user": {"z": 1, "a": 2}},
		{"id": 1212092628029698048, "text": "no id_str"}
	]`)

	records, err := decodeRecords(body)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(20), records[0].ID)
	assert.Equal(t, uint64(1212092628029698048), records[1].ID)

	out, err := json.Marshal(records[0])
	require.NoError(t, err)
	assert.Equal(t, `{"id":20,"id_str":"20","text":"hi","user":{"a":2,"z":1}}`, string(out))

	_, err = decodeRecords([]byte(`[{"text":"no id"}]`))
	assert.Error(t, err)
}

func TestTweetKind(t *testing.T) {
	tests := []struct {
		text string
		want Kind
	}{
		{"RT @someone: hello", KindRetweet},
		{"@someone hello", KindReply},
		{"hello @someone", KindTweet},
		{"RT without mention", KindTweet},
		{"", KindTweet},
	}
	for _, tt := range tests {
		tw := Tweet{Text: tt.text}
		assert.Equal(t, tt.want, tw.Kind(), tt.text)
	}

	// extended text wins
	tw := Tweet{Text: "truncated…", FullText: "RT @a: full"}
	assert.Equal(t, KindRetweet, tw.Kind())
	assert.Equal(t, "RT @a: full", tw.Body())
}

func TestTweetCreatedTime(t *testing.T) {
	tw := Tweet{CreatedAt: "Wed Oct 10 20:19:24 +0000 2018"}
	ts, err := tw.CreatedTime()
	require.NoError(t, err)
	assert.Equal(t, int64(1539202764), ts.Unix())
	assert.Equal(t, time.October, ts.UTC().Month())

	_, err = (&Tweet{CreatedAt: "2018-10-10"}).CreatedTime()
	assert.Error(t, err)
}

func TestTweetPointAndIdentifier(t *testing.T) {
	tw := Tweet{ID: 5, IDStr: "9007199254740993", Coordinates: &Coordinates{Type: "Point", Coordinates: []float64{-73.99, 40.73}}}
	lat, lon, ok := tw.Point()
	require.True(t, ok)
	assert.Equal(t, 40.73, lat)
	assert.Equal(t, -73.99, lon)
	assert.Equal(t, uint64(9007199254740993), tw.Identifier())

	_, _, ok = (&Tweet{}).Point()
	assert.False(t, ok)
	assert.Equal(t, uint64(7), (&Tweet{ID: 7}).Identifier())
}

func TestDecodeSearchPage(t *testing.T) {
	page, err := decodeSearchPage([]byte(`{"statuses":[{"id":3,"id_str":"3","text":"a"},{"id":1,"id_str":"1","text":"b"}],"search_metadata":{"completed_in":0.01}}`))
	require.NoError(t, err)
	assert.Len(t, page.Statuses, 2)
	assert.Equal(t, uint64(1), page.MinID())
	assert.Equal(t, `[{"id":3,"id_str":"3","text":"a"},{"id":1,"id_str":"1","text":"b"}]`, string(page.Raw))

	empty, err := decodeSearchPage([]byte(`{"statuses":[]}`))
	require.NoError(t, err)
	assert.True(t, empty.Empty())
	assert.Zero(t, empty.MinID())

	missing, err := decodeSearchPage([]byte(`{}`))
	require.NoError(t, err)
	assert.True(t, missing.Empty())
}

func TestURLs(t *testing.T) {
	lookup, err := url.Parse(LookupURL("http://api.test/1.1", []uint64{1, 22, 333}, TweetModeExtended))
	require.NoError(t, err)
	assert.Equal(t, "/1.1/statuses/lookup.json", lookup.Path)
	assert.Equal(t, "1,22,333", lookup.Query().Get("id"))
	assert.Equal(t, "extended", lookup.Query().Get("tweet_mode"))

	search, err := url.Parse(SearchURL("http://api.test/1.1", SearchParams{Query: "#golang lang:en", Count: 500}))
	require.NoError(t, err)
	assert.Equal(t, "#golang lang:en", search.Query().Get("q"))
	assert.Equal(t, "100", search.Query().Get("count"))
	assert.False(t, search.Query().Has("max_id"))
	assert.False(t, search.Query().Has("tweet_mode"))

	status, err := url.Parse(RateLimitStatusURL("http://api.test/1.1", "statuses", "search"))
	require.NoError(t, err)
	assert.Equal(t, "statuses,search", status.Query().Get("resources"))
}

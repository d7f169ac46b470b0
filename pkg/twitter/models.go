package twitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CreatedAtLayout is the fixed timestamp format of created_at fields.
const CreatedAtLayout = "Mon Jan 02 15:04:05 -0700 2006"

// Record is one post exactly as the lookup endpoint returned it.
// Numbers are kept as json.Number so 64-bit identifiers survive a round trip.
type Record struct {
	ID     uint64
	Fields map[string]interface{}
}

// MarshalJSON encodes the original object; map keys come out sorted and
// markup in text fields is left unescaped.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r.Fields); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// decodeRecords parses a lookup response body.
func decodeRecords(body []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw []map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(raw))
	for _, fields := range raw {
		id, err := recordID(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, Record{ID: id, Fields: fields})
	}
	return records, nil
}

func recordID(fields map[string]interface{}) (uint64, error) {
	if s, ok := fields["id_str"].(string); ok && s != "" {
		return strconv.ParseUint(s, 10, 64)
	}
	switch v := fields["id"].(type) {
	case json.Number:
		return strconv.ParseUint(v.String(), 10, 64)
	case string:
		return strconv.ParseUint(v, 10, 64)
	}
	return 0, fmt.Errorf("record has no usable id")
}

// Tweet is the subset of a status the tabular search output consumes.
type Tweet struct {
	ID                   uint64       `json:"id"`
	IDStr                string       `json:"id_str"`
	Text                 string       `json:"text"`
	FullText             string       `json:"full_text"`
	CreatedAt            string       `json:"created_at"`
	Lang                 string       `json:"lang"`
	Source               string       `json:"source"`
	InReplyToScreenName  string       `json:"in_reply_to_screen_name"`
	InReplyToStatusIDStr string       `json:"in_reply_to_status_id_str"`
	RetweetCount         int          `json:"retweet_count"`
	FavoriteCount        int          `json:"favorite_count"`
	User                 User         `json:"user"`
	Coordinates          *Coordinates `json:"coordinates"`
	RetweetedStatus      *Tweet       `json:"retweeted_status"`
}

// User is the embedded author object.
type User struct {
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	ProfileImageURL string `json:"profile_image_url"`
	FollowersCount  int    `json:"followers_count"`
}

// Coordinates is a GeoJSON point, longitude first.
type Coordinates struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// Kind classifies a post by its text prefix.
type Kind string

const (
	KindTweet   Kind = "Tweet"
	KindRetweet Kind = "Retweet"
	KindReply   Kind = "Reply"
)

// Body returns the untruncated text when the API supplied it.
func (t *Tweet) Body() string {
	if t.FullText != "" {
		return t.FullText
	}
	return t.Text
}

// Kind reports whether the post is a retweet, a reply or a plain tweet.
func (t *Tweet) Kind() Kind {
	text := t.Body()
	switch {
	case strings.HasPrefix(text, "RT @"):
		return KindRetweet
	case strings.HasPrefix(text, "@"):
		return KindReply
	default:
		return KindTweet
	}
}

// Identifier returns the numeric id, preferring id_str.
func (t *Tweet) Identifier() uint64 {
	if t.IDStr != "" {
		if id, err := strconv.ParseUint(t.IDStr, 10, 64); err == nil {
			return id
		}
	}
	return t.ID
}

// CreatedTime parses created_at.
func (t *Tweet) CreatedTime() (time.Time, error) {
	return time.Parse(CreatedAtLayout, t.CreatedAt)
}

// Point returns latitude and longitude when the post is geotagged.
func (t *Tweet) Point() (lat, lon float64, ok bool) {
	if t.Coordinates == nil || len(t.Coordinates.Coordinates) < 2 {
		return 0, 0, false
	}
	return t.Coordinates.Coordinates[1], t.Coordinates.Coordinates[0], true
}

// SearchPage is one page of search results.
type SearchPage struct {
	Statuses []Tweet
	// Raw is the undecoded statuses array, used to detect a repeated page
	Raw []byte
}

// Empty reports whether the page carries no statuses.
func (p *SearchPage) Empty() bool {
	return p == nil || len(p.Statuses) == 0
}

// MinID returns the smallest identifier on the page, or 0 for an empty page.
func (p *SearchPage) MinID() uint64 {
	var min uint64
	for i := range p.Statuses {
		id := p.Statuses[i].Identifier()
		if min == 0 || id < min {
			min = id
		}
	}
	return min
}

type searchResponse struct {
	Statuses json.RawMessage `json:"statuses"`
}

func decodeSearchPage(body []byte) (*SearchPage, error) {
	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	page := &SearchPage{Raw: []byte(resp.Statuses)}
	if len(resp.Statuses) == 0 || string(resp.Statuses) == "null" {
		return page, nil
	}
	if err := json.Unmarshal(resp.Statuses, &page.Statuses); err != nil {
		return nil, err
	}
	return page, nil
}

type rateLimitEntry struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

type rateLimitStatusResponse struct {
	Resources map[string]map[string]rateLimitEntry `json:"resources"`
}

// apiErrors is the error envelope the API returns with non-2xx statuses.
type apiErrors struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// codeRateLimitExceeded is the API error code for an exhausted window.
const codeRateLimitExceeded = 88

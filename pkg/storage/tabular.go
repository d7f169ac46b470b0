package storage

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"tweetharvest/pkg/twitter"
)

// TabularHeader is the fixed column layout of search output.
var TabularHeader = []string{
	"text", "in_reply_to_screen_name", "user_screen_name", "id_str", "user_id_str",
	"lang", "source", "user_profile_image_url", "geo_type", "latitude", "longitude",
	"created_at", "timestamp", "type", "retweet_count", "favorite_count",
	"retweeted_id_str", "in_reply_to_status_id_str", "user_followers",
}

// TabularDelimiter separates columns.
const TabularDelimiter = '|'

var textSanitizer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "|", " ")

// TabularWriter writes one row per post. The header is written when the
// file starts out empty.
type TabularWriter struct {
	*lineFile
	csv  *csv.Writer
	rows int
}

// NewTabularWriter opens path for rows.
func NewTabularWriter(path string, mode OpenMode, sync bool) (*TabularWriter, error) {
	lf, err := openLineFile(path, mode, sync)
	if err != nil {
		return nil, err
	}

	cw := csv.NewWriter(lf.w)
	cw.Comma = TabularDelimiter
	tw := &TabularWriter{lineFile: lf, csv: cw}

	if !lf.existing {
		if err := tw.writeRow(TabularHeader); err != nil {
			lf.Close()
			return nil, err
		}
	}
	return tw, nil
}

// WriteTweet appends the row for t and flushes it.
func (w *TabularWriter) WriteTweet(t *twitter.Tweet) error {
	row, err := Row(t)
	if err != nil {
		return err
	}
	if err := w.writeRow(row); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the data rows written by this writer, header excluded.
func (w *TabularWriter) Rows() int {
	return w.rows
}

func (w *TabularWriter) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", w.path, err)
	}
	return w.flush()
}

// Row renders t in TabularHeader order.
func Row(t *twitter.Tweet) ([]string, error) {
	created, err := t.CreatedTime()
	if err != nil {
		return nil, fmt.Errorf("post %s has invalid created_at %q: %w", t.IDStr, t.CreatedAt, err)
	}

	kind := t.Kind()

	var geoType, lat, lon string
	if la, lo, ok := t.Point(); ok {
		geoType = "Point"
		lat = strconv.FormatFloat(la, 'f', -1, 64)
		lon = strconv.FormatFloat(lo, 'f', -1, 64)
	}

	var retweetedID, replyToID string
	if kind == twitter.KindRetweet && t.RetweetedStatus != nil {
		retweetedID = t.RetweetedStatus.IDStr
	}
	if kind == twitter.KindReply {
		replyToID = t.InReplyToStatusIDStr
	}

	return []string{
		textSanitizer.Replace(t.Body()),
		t.InReplyToScreenName,
		t.User.ScreenName,
		t.IDStr,
		t.User.IDStr,
		t.Lang,
		t.Source,
		t.User.ProfileImageURL,
		geoType,
		lat,
		lon,
		t.CreatedAt,
		strconv.FormatInt(created.UTC().Unix(), 10),
		string(kind),
		strconv.Itoa(t.RetweetCount),
		strconv.Itoa(t.FavoriteCount),
		retweetedID,
		replyToID,
		strconv.Itoa(t.User.FollowersCount),
	}, nil
}

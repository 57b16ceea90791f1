package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"
)

// RawPost is a candidate record as yielded by a backend adapter, before
// validation. Timestamp stays a string because backends disagree on format;
// metric pointers distinguish "absent" from "zero".
type RawPost struct {
	ExternalID string `json:"id"`
	Author     string `json:"username"`
	Timestamp  string `json:"date"`
	Text       string `json:"content"`
	Likes      *int64 `json:"likes"`
	Retweets   *int64 `json:"retweets"`
	Replies    *int64 `json:"replies"`
}

// Post is a validated, admitted record.
type Post struct {
	DedupKey      string     `db:"dedup_key"      json:"dedup_key"`
	ExternalID    string     `db:"external_id"    json:"id"`
	Stream        StreamType `db:"stream"         json:"stream"`
	Author        string     `db:"username"       json:"username"`
	Timestamp     time.Time  `db:"date"           json:"date"`
	Text          string     `db:"content"        json:"content"`
	Likes         int64      `db:"likes"          json:"likes"`
	Retweets      int64      `db:"retweets"       json:"retweets"`
	Replies       int64      `db:"replies"        json:"replies"`
	SourceBackend string     `db:"source_backend" json:"source_backend"`
	FetchTime     time.Time  `db:"fetched_at"     json:"fetched_at"`
}

// DedupKeyFor computes the stable identity of a candidate. The external id
// wins when the backend provides one; otherwise the key is a fingerprint of
// (author, minute-truncated timestamp, normalized text) so the same post
// seen through two id-less backends still collides.
func DedupKeyFor(externalID, author string, ts time.Time, text string) string {
	if externalID != "" {
		return externalID
	}
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(author))))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(ts.Truncate(time.Minute).Unix(), 10)))
	h.Write([]byte{0})
	h.Write([]byte(normalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalizeText lower-cases and collapses runs of whitespace so cosmetic
// differences between backends do not defeat the fingerprint.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

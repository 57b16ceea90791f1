// Package validate admits only well-formed, previously-unseen candidates.
package validate

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/socialpulse/harvester/internal/core/domain"
)

// DefaultClockSkew is how far in the future a timestamp may lie before it
// is considered malformed rather than merely fresh.
const DefaultClockSkew = 5 * time.Minute

// Validator applies the per-record admission rules.
type Validator struct {
	skew time.Duration
	now  func() time.Time
}

func NewValidator(skew time.Duration) *Validator {
	if skew <= 0 {
		skew = DefaultClockSkew
	}
	return &Validator{skew: skew, now: time.Now}
}

// Validate turns a raw candidate into an admitted Post, or explains why it
// must be rejected. Rejection never aborts a run; the caller just counts it.
//
// Metrics default to zero when absent. That default never extends to the
// timestamp or author: those missing or malformed always reject.
func (v *Validator) Validate(raw *domain.RawPost, stream domain.StreamType, backendName string) (*domain.Post, *domain.ValidationError) {
	author := strings.TrimSpace(raw.Author)
	if author == "" {
		return nil, &domain.ValidationError{Field: "author", Reason: "empty"}
	}

	text := strings.TrimSpace(raw.Text)
	if text == "" {
		return nil, &domain.ValidationError{Field: "text", Reason: "empty"}
	}

	if strings.TrimSpace(raw.Timestamp) == "" {
		return nil, &domain.ValidationError{Field: "timestamp", Reason: "missing"}
	}
	// Backends emit whatever format their upstream uses; dateparse covers
	// RFC3339, RFC1123, unix seconds and the usual long tail.
	ts, err := dateparse.ParseAny(raw.Timestamp)
	if err != nil {
		return nil, &domain.ValidationError{Field: "timestamp", Reason: "unparsable: " + raw.Timestamp}
	}
	if ts.After(v.now().Add(v.skew)) {
		return nil, &domain.ValidationError{Field: "timestamp", Reason: "in the future"}
	}

	likes, verr := metric("likes", raw.Likes)
	if verr != nil {
		return nil, verr
	}
	retweets, verr := metric("retweets", raw.Retweets)
	if verr != nil {
		return nil, verr
	}
	replies, verr := metric("replies", raw.Replies)
	if verr != nil {
		return nil, verr
	}

	return &domain.Post{
		DedupKey:      domain.DedupKeyFor(raw.ExternalID, author, ts, text),
		ExternalID:    raw.ExternalID,
		Stream:        stream,
		Author:        author,
		Timestamp:     ts,
		Text:          text,
		Likes:         likes,
		Retweets:      retweets,
		Replies:       replies,
		SourceBackend: backendName,
		FetchTime:     v.now().UTC(),
	}, nil
}

func metric(field string, val *int64) (int64, *domain.ValidationError) {
	if val == nil {
		return 0, nil
	}
	if *val < 0 {
		return 0, &domain.ValidationError{Field: field, Reason: "negative"}
	}
	return *val, nil
}

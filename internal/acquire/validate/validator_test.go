package validate

import (
	"testing"
	"time"

	"github.com/socialpulse/harvester/internal/core/domain"
)

func ptr(v int64) *int64 { return &v }

func validRaw() *domain.RawPost {
	return &domain.RawPost{
		ExternalID: "12345",
		Author:     "someone",
		Timestamp:  "2023-06-01T10:00:00Z",
		Text:       "a perfectly fine post",
		Likes:      ptr(10),
		Retweets:   ptr(2),
		Replies:    ptr(1),
	}
}

func TestValidate_AdmitsWellFormedPost(t *testing.T) {
	v := NewValidator(0)

	post, verr := v.Validate(validRaw(), domain.StreamTimeline, "mirror")
	if verr != nil {
		t.Fatalf("Expected admission, got %v", verr)
	}

	if post.DedupKey != "12345" {
		t.Errorf("Expected external id as dedup key, got %s", post.DedupKey)
	}
	if post.Likes != 10 || post.Retweets != 2 || post.Replies != 1 {
		t.Errorf("Metrics mangled: %+v", post)
	}
	if post.SourceBackend != "mirror" {
		t.Errorf("Expected source backend recorded, got %s", post.SourceBackend)
	}
	if post.Timestamp.UTC().Hour() != 10 {
		t.Errorf("Timestamp parsed wrong: %v", post.Timestamp)
	}
}

func TestValidate_UnparsableDateRejectsRegardless(t *testing.T) {
	v := NewValidator(0)

	raw := validRaw()
	raw.Timestamp = "sometime last tuesday"
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr == nil || verr.Field != "timestamp" {
		t.Errorf("Expected timestamp rejection, got %v", verr)
	}

	raw = validRaw()
	raw.Timestamp = ""
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr == nil || verr.Field != "timestamp" {
		t.Errorf("Expected missing-timestamp rejection, got %v", verr)
	}
}

func TestValidate_FutureTimestampBeyondSkewRejects(t *testing.T) {
	v := NewValidator(5 * time.Minute)

	raw := validRaw()
	raw.Timestamp = time.Now().Add(10 * time.Minute).Format(time.RFC3339)
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr == nil {
		t.Error("Expected future timestamp rejection")
	}

	// Inside the skew tolerance is fine.
	raw.Timestamp = time.Now().Add(2 * time.Minute).Format(time.RFC3339)
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr != nil {
		t.Errorf("Expected admission within skew, got %v", verr)
	}
}

func TestValidate_EmptyAuthorOrTextRejects(t *testing.T) {
	v := NewValidator(0)

	raw := validRaw()
	raw.Author = "   "
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr == nil || verr.Field != "author" {
		t.Errorf("Expected author rejection, got %v", verr)
	}

	raw = validRaw()
	raw.Text = "\n\t"
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr == nil || verr.Field != "text" {
		t.Errorf("Expected text rejection, got %v", verr)
	}
}

func TestValidate_MissingMetricsDefaultToZero(t *testing.T) {
	v := NewValidator(0)

	raw := validRaw()
	raw.Likes = nil
	raw.Retweets = nil
	raw.Replies = nil

	post, verr := v.Validate(raw, domain.StreamTimeline, "mirror")
	if verr != nil {
		t.Fatalf("Missing metrics must not reject: %v", verr)
	}
	if post.Likes != 0 || post.Retweets != 0 || post.Replies != 0 {
		t.Errorf("Expected zero defaults, got %+v", post)
	}
}

func TestValidate_NegativeMetricRejects(t *testing.T) {
	v := NewValidator(0)

	raw := validRaw()
	raw.Retweets = ptr(-1)
	if _, verr := v.Validate(raw, domain.StreamTimeline, "mirror"); verr == nil || verr.Field != "retweets" {
		t.Errorf("Expected retweets rejection, got %v", verr)
	}
}

func TestValidate_FingerprintForMissingExternalID(t *testing.T) {
	v := NewValidator(0)

	raw := validRaw()
	raw.ExternalID = ""
	post, verr := v.Validate(raw, domain.StreamTimeline, "mirror")
	if verr != nil {
		t.Fatalf("Expected admission, got %v", verr)
	}
	if post.DedupKey == "" || post.DedupKey == raw.Text {
		t.Errorf("Expected derived fingerprint, got %q", post.DedupKey)
	}

	// Cosmetic whitespace differences must not change the fingerprint.
	raw2 := validRaw()
	raw2.ExternalID = ""
	raw2.Text = "  a   perfectly fine\tpost "
	post2, _ := v.Validate(raw2, domain.StreamTimeline, "mirror")
	if post2.DedupKey != post.DedupKey {
		t.Error("Fingerprint changed under whitespace normalization")
	}
}

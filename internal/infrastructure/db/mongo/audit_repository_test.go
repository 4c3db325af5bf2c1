package mongo

import (
	"testing"
	"time"

	"github.com/servimarket/portal/internal/core/domain"
)

func TestCommitDocument(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	doc := commitDocument(domain.StepCommitted{
		UserID:    "v1",
		Step:      domain.StepDocs,
		Submitted: false,
		At:        at,
	}, at.Add(time.Second))

	if doc["user_id"] != "v1" || doc["step"] != "docs" || doc["step_index"] != 3 {
		t.Fatalf("unexpected document: %v", doc)
	}
	if got := doc["committed_at"].(time.Time); got.Location() != time.UTC || !got.Equal(at) {
		t.Fatalf("committed_at should be stored in UTC, got %v", got)
	}
	if doc["submitted"] != false {
		t.Fatalf("submitted flag lost")
	}
}

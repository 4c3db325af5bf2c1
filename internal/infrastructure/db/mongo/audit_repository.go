package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/servimarket/portal/internal/core/domain"
	"github.com/servimarket/portal/internal/core/ports"
)

const commitsCollection = "onboarding_commits"

// AuditRepository implements ports.AuditRepository using MongoDB.
type AuditRepository struct {
	col *mongo.Collection
	now func() time.Time
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{col: db.Collection(commitsCollection), now: time.Now}
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

// InsertCommit records one acknowledged onboarding step.
func (r *AuditRepository) InsertCommit(ctx context.Context, event domain.StepCommitted) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, commitDocument(event, r.now())); err != nil {
		return fmt.Errorf("insert commit %s/%s: %w", event.UserID, event.Step, err)
	}
	return nil
}

// EnsureIndexes creates the lookup indexes on the commits collection.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "committed_at", Value: -1}}},
		{Keys: bson.D{{Key: "step", Value: 1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}

func commitDocument(event domain.StepCommitted, recordedAt time.Time) bson.M {
	return bson.M{
		"user_id":      event.UserID,
		"step":         string(event.Step),
		"step_index":   event.Step.Index(),
		"submitted":    event.Submitted,
		"committed_at": event.At.UTC(),
		"recorded_at":  recordedAt.UTC(),
	}
}

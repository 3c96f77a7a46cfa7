package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/pkg/database"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
)

const (
	insertReplyQuery = `
		INSERT INTO review_replies (id, review_id, text, posted_at, posted_by_user_id, type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (review_id) DO NOTHING
		RETURNING id`

	upsertReplyQuery = `
		INSERT INTO review_replies (id, review_id, text, posted_at, posted_by_user_id, type)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (review_id) DO UPDATE SET
			text = EXCLUDED.text,
			posted_at = EXCLUDED.posted_at,
			posted_by_user_id = EXCLUDED.posted_by_user_id,
			type = EXCLUDED.type
		RETURNING id`

	markAnsweredQuery = `
		UPDATE reviews SET answered_at = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3`
)

// ErrAlreadyAnswered is returned by Save when a reply exists and editing was not requested.
var ErrAlreadyAnswered = apperrors.Conflict("ALREADY_ANSWERED", "review already answered")

// ReplyRepository implements repository.ReplyRepository using PostgreSQL.
type ReplyRepository struct {
	pool database.DBTX
}

// NewReplyRepository creates a new PostgreSQL-backed reply repository.
func NewReplyRepository(pool database.DBTX) *ReplyRepository {
	return &ReplyRepository{pool: pool}
}

// GetByReviewID retrieves the reply of a review.
func (r *ReplyRepository) GetByReviewID(ctx context.Context, reviewID string) (_ *domain.Reply, err error) {
	query := `
		SELECT id, review_id, text, posted_at, posted_by_user_id, type
		FROM review_replies
		WHERE review_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReplyByReviewID", query)
	defer func() { end(err) }()

	var reply domain.Reply
	err = r.pool.QueryRow(ctx, query, reviewID).Scan(
		&reply.ID,
		&reply.ReviewID,
		&reply.Text,
		&reply.PostedAt,
		&reply.PostedByUserID,
		&reply.Type,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reply for review", reviewID)
		}
		return nil, fmt.Errorf("get reply by review id: %w", err)
	}

	return &reply, nil
}

// Save writes the reply and the review's answered_at in one transaction.
// The UNIQUE(review_id) constraint decides concurrent first replies: the
// loser sees ErrAlreadyAnswered. With allowEdit the existing row is updated
// in place and reply.ID is set to its id.
func (r *ReplyRepository) Save(ctx context.Context, tenantID string, reply *domain.Reply, allowEdit bool) (err error) {
	query := insertReplyQuery
	if allowEdit {
		query = upsertReplyQuery
	}

	ctx, end := database.TraceQuery(ctx, "SaveReply", query)
	defer func() { end(err) }()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, query,
		reply.ID,
		reply.ReviewID,
		reply.Text,
		reply.PostedAt,
		reply.PostedByUserID,
		reply.Type,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadyAnswered
		}
		if isUniqueViolation(err) {
			return ErrAlreadyAnswered
		}
		return fmt.Errorf("insert reply: %w", err)
	}

	ct, err := tx.Exec(ctx, markAnsweredQuery, reply.PostedAt, reply.ReviewID, tenantID)
	if err != nil {
		return fmt.Errorf("mark review answered: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("review", reply.ReviewID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	reply.ID = id
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	"github.com/TheHatt/revboard/pkg/database"
	apperrors "github.com/TheHatt/revboard/pkg/errors"
)

const reviewColumns = `r.id, r.tenant_id, r.location_id, r.rating, r.text, r.author_name, r.published_at, r.answered_at`

// ReviewRepository implements repository.ReviewRepository using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// GetByID retrieves a review by id.
func (r *ReviewRepository) GetByID(ctx context.Context, id string) (_ *domain.Review, err error) {
	query := `SELECT ` + reviewColumns + ` FROM reviews r WHERE r.id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReviewByID", query)
	defer func() { end(err) }()

	var rev domain.Review
	err = r.pool.QueryRow(ctx, query, id).Scan(
		&rev.ID,
		&rev.TenantID,
		&rev.LocationID,
		&rev.Rating,
		&rev.Text,
		&rev.AuthorName,
		&rev.PublishedAt,
		&rev.AnsweredAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("review", id)
		}
		return nil, fmt.Errorf("get review by id: %w", err)
	}

	return &rev, nil
}

// FindReviews returns one keyset page of reviews with their location name
// and reply text.
func (r *ReviewRepository) FindReviews(ctx context.Context, filter repository.ReviewFilter, cursor *repository.ReviewCursor, limit int) (_ []domain.Review, err error) {
	where, args := reviewWhere(filter)
	argIndex := len(args) + 1

	if cursor != nil {
		where += fmt.Sprintf(" AND (r.published_at, r.id) < ($%d, $%d)", argIndex, argIndex+1)
		args = append(args, cursor.PublishedAt, cursor.ID)
		argIndex += 2
	}

	query := fmt.Sprintf(`
		SELECT %s, COALESCE(l.name, ''), rp.text
		FROM reviews r
		LEFT JOIN locations l ON l.id = r.location_id
		LEFT JOIN review_replies rp ON rp.review_id = r.id
		%s
		ORDER BY r.published_at DESC, r.id DESC
		LIMIT $%d`,
		reviewColumns, where, argIndex,
	)
	args = append(args, limit)

	ctx, end := database.TraceQuery(ctx, "FindReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find reviews: %w", err)
	}
	defer rows.Close()

	reviews := []domain.Review{}
	for rows.Next() {
		var rev domain.Review
		if err := rows.Scan(
			&rev.ID,
			&rev.TenantID,
			&rev.LocationID,
			&rev.Rating,
			&rev.Text,
			&rev.AuthorName,
			&rev.PublishedAt,
			&rev.AnsweredAt,
			&rev.LocationName,
			&rev.ReplyText,
		); err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		reviews = append(reviews, rev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review rows: %w", err)
	}

	return reviews, nil
}

// CountReviews returns the number of matching reviews.
func (r *ReviewRepository) CountReviews(ctx context.Context, filter repository.ReviewFilter) (_ int, err error) {
	where, args := reviewWhere(filter)
	query := `SELECT COUNT(*) FROM reviews r ` + where

	ctx, end := database.TraceQuery(ctx, "CountReviews", query)
	defer func() { end(err) }()

	var count int
	if err = r.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return count, nil
}

// AggregateAvgRating returns the mean rating of matching reviews.
func (r *ReviewRepository) AggregateAvgRating(ctx context.Context, filter repository.ReviewFilter) (_ *float64, err error) {
	where, args := reviewWhere(filter)
	query := `SELECT AVG(r.rating)::float8 FROM reviews r ` + where

	ctx, end := database.TraceQuery(ctx, "AggregateAvgRating", query)
	defer func() { end(err) }()

	var avg *float64
	if err = r.pool.QueryRow(ctx, query, args...).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average rating: %w", err)
	}
	return avg, nil
}

// GroupCountBy counts matching reviews per distinct combination of fields.
func (r *ReviewRepository) GroupCountBy(ctx context.Context, filter repository.ReviewFilter, fields ...repository.GroupField) (_ []repository.GroupCount, err error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("group reviews: no group fields")
	}

	cols := make([]string, len(fields))
	for i, f := range fields {
		switch f {
		case repository.GroupByRating, repository.GroupByLocation:
			cols[i] = "r." + string(f)
		default:
			return nil, fmt.Errorf("group reviews: unsupported field %q", f)
		}
	}

	where, args := reviewWhere(filter)
	groupBy := strings.Join(cols, ", ")
	query := fmt.Sprintf(`SELECT %s, COUNT(*) FROM reviews r %s GROUP BY %s ORDER BY %s`,
		groupBy, where, groupBy, groupBy)

	ctx, end := database.TraceQuery(ctx, "GroupCountBy", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("group reviews: %w", err)
	}
	defer rows.Close()

	groups := []repository.GroupCount{}
	for rows.Next() {
		var g repository.GroupCount
		dest := make([]any, 0, len(fields)+1)
		for _, f := range fields {
			if f == repository.GroupByRating {
				dest = append(dest, &g.Rating)
			} else {
				dest = append(dest, &g.LocationID)
			}
		}
		dest = append(dest, &g.Count)

		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan group row: %w", err)
		}
		groups = append(groups, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate group rows: %w", err)
	}

	return groups, nil
}

// ListStatRows returns the columns the statistics pass aggregates over.
func (r *ReviewRepository) ListStatRows(ctx context.Context, filter repository.ReviewFilter) (_ []repository.StatRow, err error) {
	where, args := reviewWhere(filter)
	query := `SELECT r.rating, r.published_at, r.answered_at FROM reviews r ` + where

	ctx, end := database.TraceQuery(ctx, "ListStatRows", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stat rows: %w", err)
	}
	defer rows.Close()

	out := []repository.StatRow{}
	for rows.Next() {
		var row repository.StatRow
		if err := rows.Scan(&row.Rating, &row.PublishedAt, &row.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan stat row: %w", err)
		}
		out = append(out, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stat rows: %w", err)
	}

	return out, nil
}

// ListTexts returns the non-blank review texts of matching reviews.
func (r *ReviewRepository) ListTexts(ctx context.Context, filter repository.ReviewFilter) (_ []string, err error) {
	where, args := reviewWhere(filter)
	query := `SELECT r.text FROM reviews r ` + where + ` AND r.text IS NOT NULL AND btrim(r.text) <> ''
		ORDER BY r.published_at, r.id`

	ctx, end := database.TraceQuery(ctx, "ListTexts", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list review texts: %w", err)
	}
	defer rows.Close()

	texts := []string{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan review text: %w", err)
		}
		texts = append(texts, text)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review texts: %w", err)
	}

	return texts, nil
}

// Upsert inserts an imported review or refreshes its content. A review id
// that already belongs to another tenant is rejected.
func (r *ReviewRepository) Upsert(ctx context.Context, review *domain.Review) (err error) {
	query := `
		INSERT INTO reviews (id, tenant_id, location_id, rating, text, author_name, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			location_id = EXCLUDED.location_id,
			rating = EXCLUDED.rating,
			text = EXCLUDED.text,
			author_name = EXCLUDED.author_name,
			published_at = EXCLUDED.published_at,
			updated_at = now()
		WHERE reviews.tenant_id = EXCLUDED.tenant_id`

	ctx, end := database.TraceQuery(ctx, "UpsertReview", query)
	defer func() { end(err) }()

	tag, err := r.pool.Exec(ctx, query,
		review.ID,
		review.TenantID,
		review.LocationID,
		review.Rating,
		review.Text,
		review.AuthorName,
		review.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.Conflict("TENANT_MISMATCH", fmt.Sprintf("review %s belongs to another tenant", review.ID))
	}

	return nil
}

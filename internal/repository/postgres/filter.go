package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
)

// reviewWhere renders filter as a WHERE clause over the reviews table
// aliased as r. The returned args are positional starting at $1.
func reviewWhere(filter repository.ReviewFilter) (string, []any) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	conditions = append(conditions, fmt.Sprintf("r.tenant_id = $%d", argIndex))
	args = append(args, filter.TenantID)
	argIndex++

	if filter.LocationID != nil {
		conditions = append(conditions, fmt.Sprintf("r.location_id = $%d", argIndex))
		args = append(args, *filter.LocationID)
		argIndex++
	}

	if len(filter.LocationIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("r.location_id = ANY($%d)", argIndex))
		args = append(args, filter.LocationIDs)
		argIndex++
	}

	if filter.Rating != nil {
		conditions = append(conditions, fmt.Sprintf("r.rating = $%d", argIndex))
		args = append(args, *filter.Rating)
		argIndex++
	}

	switch filter.Status {
	case domain.StatusOpen:
		conditions = append(conditions, "r.answered_at IS NULL")
	case domain.StatusAnswered:
		conditions = append(conditions, "r.answered_at IS NOT NULL")
	}

	if filter.PublishedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("r.published_at >= $%d", argIndex))
		args = append(args, *filter.PublishedFrom)
		argIndex++
	}

	if filter.PublishedTo != nil {
		conditions = append(conditions, fmt.Sprintf("r.published_at <= $%d", argIndex))
		args = append(args, *filter.PublishedTo)
		argIndex++
	}

	if filter.Query != nil && strings.TrimSpace(*filter.Query) != "" {
		conditions = append(conditions, fmt.Sprintf(`r.text ILIKE $%d ESCAPE '\'`, argIndex))
		args = append(args, "%"+escapeLike(strings.TrimSpace(*filter.Query))+"%")
	}

	return "WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// isUniqueViolation checks if the error is a PostgreSQL unique constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

package service

import (
	"github.com/TheHatt/revboard/internal/domain"
	"github.com/TheHatt/revboard/internal/repository"
	"github.com/TheHatt/revboard/pkg/pagination"
)

// decodeReviewCursor parses a list cursor. An empty token means the first page.
func decodeReviewCursor(token string) (*repository.ReviewCursor, error) {
	if token == "" {
		return nil, nil
	}
	c, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, err
	}
	return &repository.ReviewCursor{PublishedAt: c.At, ID: c.ID}, nil
}

// reviewCursor is the keyset position after r.
func reviewCursor(r domain.Review) pagination.Cursor {
	return pagination.Cursor{At: r.PublishedAt, ID: r.ID}
}

package domain

import (
	"time"
)

// MinRating and MaxRating bound a review's star rating.
const (
	MinRating = 1
	MaxRating = 5
)

// Review represents a customer review of one location.
type Review struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	LocationID  string     `json:"location_id"`
	Rating      int        `json:"rating"`
	Text        *string    `json:"text,omitempty"`
	AuthorName  *string    `json:"author_name,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	AnsweredAt  *time.Time `json:"answered_at,omitempty"`

	// Populated by list queries that join the location and reply.
	LocationName string  `json:"location_name,omitempty"`
	ReplyText    *string `json:"reply_text,omitempty"`
}

// Answered reports whether a reply has been posted.
func (r *Review) Answered() bool {
	return r.AnsweredAt != nil
}

// ValidRating reports whether n is a star rating between 1 and 5.
func ValidRating(n int) bool {
	return n >= MinRating && n <= MaxRating
}

// ReviewStatus filters reviews by reply state.
type ReviewStatus string

const (
	StatusAll      ReviewStatus = "all"
	StatusOpen     ReviewStatus = "open"
	StatusAnswered ReviewStatus = "answered"
)

// ParseReviewStatus maps a query value to a status. Unknown values mean all.
func ParseReviewStatus(s string) ReviewStatus {
	switch ReviewStatus(s) {
	case StatusOpen, StatusAnswered:
		return ReviewStatus(s)
	default:
		return StatusAll
	}
}

package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// AnonymousAuthor is displayed for reviews without an author name.
const AnonymousAuthor = "Anonymous"

// ReviewItem is one row of the review list as rendered to clients.
type ReviewItem struct {
	ID          string  `json:"id"`
	Author      string  `json:"author"`
	Initials    string  `json:"initials"`
	Stars       int     `json:"stars"`
	Text        *string `json:"text"`
	Location    string  `json:"location"`
	PublishedAt string  `json:"published_at"`
	Answered    bool    `json:"answered"`
	ReplyText   *string `json:"reply_text,omitempty"`
}

// NewReviewItem builds the list representation of r.
func NewReviewItem(r Review) ReviewItem {
	author := AnonymousAuthor
	if r.AuthorName != nil && strings.TrimSpace(*r.AuthorName) != "" {
		author = strings.TrimSpace(*r.AuthorName)
	}
	location := r.LocationName
	if location == "" {
		location = UnknownLocationLabel
	}
	return ReviewItem{
		ID:          r.ID,
		Author:      author,
		Initials:    Initials(r.AuthorName),
		Stars:       r.Rating,
		Text:        r.Text,
		Location:    location,
		PublishedAt: r.PublishedAt.UTC().Format(time.RFC3339),
		Answered:    r.Answered(),
		ReplyText:   r.ReplyText,
	}
}

// Initials returns the upper-cased first letters of the first two words of
// name, or "AN" when there is no name.
func Initials(name *string) string {
	if name == nil || strings.TrimSpace(*name) == "" {
		return "AN"
	}
	var b strings.Builder
	for _, word := range strings.Fields(*name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(r))
		if utf8.RuneCountInString(b.String()) == 2 {
			break
		}
	}
	return b.String()
}

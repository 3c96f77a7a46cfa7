package domain

import (
	"time"
)

// ReplyType records how a reply text was produced.
type ReplyType string

const (
	ReplyTypeManual              ReplyType = "manual"
	ReplyTypeAutomatedSuggestion ReplyType = "automated_suggestion"
)

// MaxReplyLength is the longest reply text accepted, in characters.
const MaxReplyLength = 5000

// Reply is the single answer posted to a review.
type Reply struct {
	ID             string    `json:"id"`
	ReviewID       string    `json:"review_id"`
	Text           string    `json:"text"`
	PostedAt       time.Time `json:"posted_at"`
	PostedByUserID *string   `json:"posted_by_user_id,omitempty"`
	Type           ReplyType `json:"type"`
}

// ReplyResult is what a successful save returns to the caller.
type ReplyResult struct {
	Text       string    `json:"text"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Tone selects the register of a suggested reply.
type Tone string

const (
	ToneNeutral  Tone = "neutral"
	ToneFriendly Tone = "friendly"
	ToneFormal   Tone = "formal"
	ToneDetailed Tone = "detailed"
	ToneShort    Tone = "short"
)

// Tones lists the supported tones in display order.
var Tones = []Tone{ToneNeutral, ToneFriendly, ToneFormal, ToneDetailed, ToneShort}

// ParseTone returns the tone named by s, defaulting to neutral.
func ParseTone(s string) Tone {
	for _, t := range Tones {
		if string(t) == s {
			return t
		}
	}
	return ToneNeutral
}

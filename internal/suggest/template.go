package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/TheHatt/revboard/internal/domain"
)

// Templates drafts replies from fixed German templates. It never fails and
// serves as the fallback of the LLM suggester.
type Templates struct{}

// Suggest returns a template reply for review in the given tone.
func (Templates) Suggest(_ context.Context, review *domain.Review, tone domain.Tone) (string, error) {
	greeting := "Hallo"
	if name := firstName(review.AuthorName); name != "" {
		greeting += " " + name
	}
	greeting += ","

	var body string
	switch tone {
	case domain.ToneShort:
		body = "danke für Ihre Bewertung! Viele Grüße\nIhr Team"
	case domain.ToneFormal:
		body = fmt.Sprintf("wir bedanken uns für Ihre %d-Sterne-Bewertung. %s\n\nMit freundlichen Grüßen\nIhr Team", review.Rating, followUp(review.Rating))
	case domain.ToneFriendly:
		body = fmt.Sprintf("vielen herzlichen Dank für Ihre %d-Sterne-Bewertung! %s\n\nLiebe Grüße\nIhr Team", review.Rating, followUp(review.Rating))
	case domain.ToneDetailed:
		body = fmt.Sprintf("vielen Dank, dass Sie sich die Zeit für Ihre %d-Sterne-Bewertung genommen haben. %s Ihr Feedback geben wir an das ganze Team weiter.\n\nFreundliche Grüße\nIhr Team", review.Rating, followUp(review.Rating))
	default:
		body = fmt.Sprintf("vielen Dank für Ihre %d-Sterne-Bewertung und das Feedback.\n\nFreundliche Grüße\nIhr Team", review.Rating)
	}

	return greeting + "\n\n" + body, nil
}

func followUp(rating int) string {
	switch {
	case rating >= 4:
		return "Es freut uns sehr, dass Sie zufrieden waren, und wir hoffen, Sie bald wieder begrüßen zu dürfen."
	case rating == 3:
		return "Wir nehmen Ihre Anmerkungen ernst und arbeiten daran, noch besser zu werden."
	default:
		return "Es tut uns leid, dass wir Ihre Erwartungen nicht erfüllt haben. Bitte kontaktieren Sie uns direkt, damit wir die Sache klären können."
	}
}

func firstName(author *string) string {
	if author == nil {
		return ""
	}
	fields := strings.Fields(*author)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

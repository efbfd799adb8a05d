package extraction

import (
	"sort"

	dErrors "certproof/pkg/domain-errors"
)

// ReviewThreshold is the confidence below which manual review is mandatory.
const ReviewThreshold = 70.0

// Review is the advisory attached to extracted fields before confirmation.
type Review struct {
	RequiresManualReview bool    `json:"requires_manual_review"`
	Confidence           float64 `json:"confidence"`
}

// ReviewFor returns the advisory for fields.
func ReviewFor(f Fields) Review {
	return Review{
		RequiresManualReview: f.Confidence < ReviewThreshold,
		Confidence:           f.Confidence,
	}
}

// Confirmed is what the user accepted. It is the only output of extraction
// that reaches the proof registry.
type Confirmed struct {
	Fields        Fields   `json:"fields"`
	Confidence    float64  `json:"confidence"`
	UserCorrected []string `json:"user_corrected,omitempty"`
}

// Confirm applies user corrections and freezes the fields. A review that
// requires manual confirmation must be acknowledged.
//
// Errors: CodeReviewRequired when review is pending and not acknowledged;
// CodeValidation for corrections to unknown fields.
func Confirm(review Review, fields Fields, corrections map[string]string, acknowledged bool) (Confirmed, error) {
	if review.RequiresManualReview && !acknowledged {
		return Confirmed{}, dErrors.New(dErrors.CodeReviewRequired, "low-confidence extraction must be reviewed before confirmation")
	}

	out := fields
	var corrected []string
	for name, value := range corrections {
		before, _ := out.Get(name)
		if !out.Set(name, value) {
			return Confirmed{}, dErrors.New(dErrors.CodeValidation, "unknown field "+name)
		}
		if after, _ := out.Get(name); after != before {
			corrected = append(corrected, name)
		}
	}
	sort.Strings(corrected)

	return Confirmed{Fields: out, Confidence: review.Confidence, UserCorrected: corrected}, nil
}

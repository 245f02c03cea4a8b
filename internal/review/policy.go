// Package review decides which extracted field values a human must confirm
// before the document counts as final.
package review

// ConfidenceThreshold is stricter than the validation warning threshold on
// purpose: a value can pass validation with middling confidence and still be
// routed to a reviewer.
const ConfidenceThreshold = 0.80

// NeedsReview flags a field for human review when its confidence falls below
// the threshold or validation found at least one error for it.
func NeedsReview(confidence float64, hasValidationErrors bool) bool {
	return confidence < ConfidenceThreshold || hasValidationErrors
}

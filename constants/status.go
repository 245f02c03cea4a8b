package constants

// DocumentStatus is the canonical lifecycle status for rows in documents.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	StatusUploaded   DocumentStatus = "UPLOADED"   // created, not yet processed
	StatusProcessing DocumentStatus = "PROCESSING" // pipeline in flight
	StatusCompleted  DocumentStatus = "COMPLETED"  // terminal success
	StatusFailed     DocumentStatus = "FAILED"     // terminal failure
	StatusReview     DocumentStatus = "REVIEW"     // human review in progress
	StatusApproved   DocumentStatus = "APPROVED"   // human accepted
	StatusRejected   DocumentStatus = "REJECTED"   // human rejected
)

// PipelineStartable reports whether a new pipeline run may begin for a
// document in status s. A document already PROCESSING is refused; the caller
// serializes re-processing per document.
func PipelineStartable(s DocumentStatus) bool {
	switch s {
	case StatusUploaded, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ReviewTransition reports whether a human workflow may move a document from
// one status to another. The pipeline itself never writes these.
func ReviewTransition(from, to DocumentStatus) bool {
	switch to {
	case StatusReview, StatusApproved, StatusRejected:
		return from == StatusCompleted || from == StatusReview
	default:
		return false
	}
}

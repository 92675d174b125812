package domain

import "time"

// BatchStatus is the provider-reported state of a batch job.
type BatchStatus string

const (
	BatchPending  BatchStatus = "pending"
	BatchEnded    BatchStatus = "ended"
	BatchExpired  BatchStatus = "expired"
	BatchCanceled BatchStatus = "canceled"
)

// Terminal reports whether polling can stop.
func (s BatchStatus) Terminal() bool {
	return s == BatchEnded || s == BatchExpired || s == BatchCanceled
}

// BatchJob is an external generation submission covering many records.
type BatchJob struct {
	ID          string
	RecordIDs   []string
	SubmittedAt time.Time
	Status      BatchStatus
	IngestedAt  *time.Time
}

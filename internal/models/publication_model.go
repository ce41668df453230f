package models

import "time"

const (
	PublicationStatusSuccess = "success"
	PublicationStatusError   = "error"
	PublicationStatusInfo    = "info"
)

const NoNewImagesMessage = "No new images to process"

// PublicationRecord is an append-only history entry. ImageName is nil for
// run-level records.
type PublicationRecord struct {
	ID         int64     `db:"id" json:"id"`
	AccountID  int64     `db:"account_id" json:"account_id"`
	RecordedAt time.Time `db:"recorded_at" json:"timestamp"`
	Status     string    `db:"status" json:"status"`
	Details    string    `db:"details" json:"details"`
	ImageName  *string   `db:"image_name" json:"image_name,omitempty"`
}

type PublicationStats struct {
	Total     int64                `json:"total"`
	Success   int64                `json:"success"`
	Error     int64                `json:"error"`
	ThisMonth int64                `json:"this_month"`
	Recent    []*PublicationRecord `json:"recent"`
}

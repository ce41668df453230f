package models

import "time"

const (
	RunStatusSuccess = "success"
	RunStatusError   = "error"
	RunStatusSkipped = "skipped"
)

type ImageResult struct {
	ImageID         string `json:"image_id"`
	ImageName       string `json:"image_name"`
	Status          string `json:"status"`
	Details         string `json:"details"`
	MediaID         string `json:"media_id,omitempty"`
	Caption         string `json:"caption,omitempty"`
	CaptionDegraded bool   `json:"caption_degraded,omitempty"`
	Warning         string `json:"warning,omitempty"`
	// RenameErr is set when the image was published but could not be
	// marked as processed in remote storage.
	RenameErr error `json:"-"`
}

type RunResult struct {
	RunID      string        `json:"run_id"`
	AccountID  int64         `json:"account_id"`
	Status     string        `json:"status"`
	Message    string        `json:"message"`
	Images     []ImageResult `json:"images"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Err        error         `json:"-"`
}

func (r *RunResult) Fail(err error) {
	r.Status = RunStatusError
	r.Message = err.Error()
	r.Err = err
}

// Published counts images that reached Instagram.
func (r *RunResult) Published() int {
	n := 0
	for _, img := range r.Images {
		if img.Status == PublicationStatusSuccess {
			n++
		}
	}
	return n
}

package models

import (
	"time"
)

const (
	PlatformMobile = "mobile"
	PlatformGraph  = "graph"

	StorageDrive = "drive"
	StorageR2    = "r2"

	CaptionGemini    = "gemini"
	CaptionAnthropic = "anthropic"
)

const (
	DefaultMorningTime   = "08:00"
	DefaultAfternoonTime = "15:00"
	DefaultEveningTime   = "22:00"
)

type Account struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	InstagramUsername  string    `db:"instagram_username" json:"instagram_username"`
	InstagramPassword  string    `db:"instagram_password" json:"-"`
	Platform           string    `db:"platform" json:"platform"`
	StorageProvider    string    `db:"storage_provider" json:"storage_provider"`
	StorageCredentials string    `db:"storage_credentials" json:"-"`
	FolderID           string    `db:"folder_id" json:"folder_id"`
	CaptionProvider    string    `db:"caption_provider" json:"caption_provider"`
	CaptionAPIKey      string    `db:"caption_api_key" json:"-"`
	CaptionPrompt      string    `db:"caption_prompt" json:"caption_prompt"`
	MorningPost        bool      `db:"morning_post" json:"morning_post"`
	MorningTime        string    `db:"morning_time" json:"morning_time"`
	AfternoonPost      bool      `db:"afternoon_post" json:"afternoon_post"`
	AfternoonTime      string    `db:"afternoon_time" json:"afternoon_time"`
	EveningPost        bool      `db:"evening_post" json:"evening_post"`
	EveningTime        string    `db:"evening_time" json:"evening_time"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleSlot is one of the three daily publication times of an account.
type ScheduleSlot struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Time    string `json:"time"`
}

func (a *Account) Slots() []ScheduleSlot {
	return []ScheduleSlot{
		{Name: "morning", Enabled: a.MorningPost, Time: a.MorningTime},
		{Name: "afternoon", Enabled: a.AfternoonPost, Time: a.AfternoonTime},
		{Name: "evening", Enabled: a.EveningPost, Time: a.EveningTime},
	}
}

package transfer

// AccountRequest is the create/update payload for an account. Nil slot
// toggles, folder and prompt mean "unchanged" on update; an empty prompt
// restores the default one. Blank secrets on update keep the stored value.
type AccountRequest struct {
	Name               string  `json:"name" form:"name"`
	InstagramUsername  string  `json:"instagram_username" form:"instagram_username"`
	InstagramPassword  string  `json:"instagram_password" form:"instagram_password"`
	Platform           string  `json:"platform" form:"platform"`
	StorageProvider    string  `json:"storage_provider" form:"storage_provider"`
	StorageCredentials string  `json:"storage_credentials" form:"storage_credentials"`
	FolderID           *string `json:"folder_id" form:"folder_id"`
	CaptionProvider    string  `json:"caption_provider" form:"caption_provider"`
	CaptionAPIKey      string  `json:"caption_api_key" form:"caption_api_key"`
	CaptionPrompt      *string `json:"caption_prompt" form:"caption_prompt"`
	MorningPost        *bool   `json:"morning_post" form:"morning_post"`
	MorningTime        string  `json:"morning_time" form:"morning_time"`
	AfternoonPost      *bool   `json:"afternoon_post" form:"afternoon_post"`
	AfternoonTime      string  `json:"afternoon_time" form:"afternoon_time"`
	EveningPost        *bool   `json:"evening_post" form:"evening_post"`
	EveningTime        string  `json:"evening_time" form:"evening_time"`
}

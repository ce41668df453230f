package transfer

// Graph API shapes.

type InstagramUserInfo struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type InstagramMediaResponse struct {
	ID string `json:"id"`
}

type InstagramErrorResponse struct {
	Error struct {
		Message        string `json:"message"`
		Type           string `json:"type"`
		Code           int    `json:"code"`
		ErrorSubcode   int    `json:"error_subcode"`
		IsTransient    bool   `json:"is_transient"`
		ErrorUserTitle string `json:"error_user_title"`
		ErrorUserMsg   string `json:"error_user_msg"`
		FbtraceID      string `json:"fbtrace_id"`
	} `json:"error"`
}

// Private mobile API shapes.

type MobileStatusResponse struct {
	Status       string `json:"status"`
	Message      string `json:"message"`
	ErrorType    string `json:"error_type"`
	ChallengeURL string `json:"challenge_url,omitempty"`
	Challenge    *struct {
		URL     string `json:"url"`
		APIPath string `json:"api_path"`
	} `json:"challenge,omitempty"`
	TwoFactorRequired bool `json:"two_factor_required"`
}

type MobileLoginResponse struct {
	MobileStatusResponse
	LoggedInUser struct {
		PK       int64  `json:"pk"`
		Username string `json:"username"`
	} `json:"logged_in_user"`
}

type MobileUploadResponse struct {
	MobileStatusResponse
	UploadID string `json:"upload_id"`
}

type MobileConfigureResponse struct {
	MobileStatusResponse
	Media struct {
		PK   int64  `json:"pk"`
		ID   string `json:"id"`
		Code string `json:"code"`
	} `json:"media"`
}

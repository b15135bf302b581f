package campaign

import "time"

// CreateCampaignRequest admits one bulk send. The recipient source is either
// an already-uploaded object key or inline text; exactly one must be set.
type CreateCampaignRequest struct {
	SenderID   string `json:"sender_id" validate:"required,sender_id"`
	Message    string `json:"message" validate:"required,max=2000"`
	FileKey    string `json:"file_key"`
	Recipients string `json:"recipients"`
	FileType   string `json:"file_type" validate:"file_type"`

	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`

	// Strict recipient validation, optional
	CountryCode    string `json:"country_code"`
	NationalLength int    `json:"national_length" validate:"gte=0,lte=15"`
}

// CreateCampaignResponse reports the admitted campaign and its cost breakdown
type CreateCampaignResponse struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	Encoding        string `json:"encoding"`
	Segments        int    `json:"segments"`
	TotalParsed     int    `json:"total_parsed"`
	Invalid         int    `json:"invalid"`
	Duplicates      int    `json:"duplicates"`
	TotalRecipients int    `json:"total_recipients"`
	RequiredCredits int    `json:"required_credits"`
	BalanceAfter    int    `json:"balance_after"`
}

// EstimateRequest previews cost without touching the ledger
type EstimateRequest struct {
	Message    string `json:"message" validate:"required,max=2000"`
	FileKey    string `json:"file_key"`
	Recipients string `json:"recipients"`
	FileType   string `json:"file_type" validate:"file_type"`

	CountryCode    string `json:"country_code"`
	NationalLength int    `json:"national_length" validate:"gte=0,lte=15"`
}

// EstimateResponse is the cost preview. Numbers are advisory: admission
// recomputes them all server-side from the same source.
type EstimateResponse struct {
	Encoding        string `json:"encoding"`
	Length          int    `json:"length"`
	Segments        int    `json:"segments"`
	TotalParsed     int    `json:"total_parsed"`
	Invalid         int    `json:"invalid"`
	Duplicates      int    `json:"duplicates"`
	TotalRecipients int    `json:"total_recipients"`
	RequiredCredits int    `json:"required_credits"`
}

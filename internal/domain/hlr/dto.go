package hlr

// SaveRequest stores a number list without charging anything
type SaveRequest struct {
	Name     string `json:"name" validate:"max=100"`
	FileKey  string `json:"file_key"`
	Numbers  string `json:"numbers"`
	FileType string `json:"file_type" validate:"file_type"`
}

// SaveResponse reports the stored list and the price of running it
type SaveResponse struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	TotalParsed     int    `json:"total_parsed"`
	TotalNumbers    int    `json:"total_numbers"`
	RequiredCredits int    `json:"required_credits"`
}

// RunResponse reports the admission of a saved job
type RunResponse struct {
	ID              string `json:"id"`
	Status          Status `json:"status"`
	RequiredCredits int    `json:"required_credits"`
	BalanceAfter    int    `json:"balance_after"`
}

// StatusResponse is the progress view for one lookup job
type StatusResponse struct {
	ID        string `json:"id"`
	Status    Status `json:"status"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
}

// DownloadResponse carries a time-limited link to the result artifact
type DownloadResponse struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"` // seconds
}

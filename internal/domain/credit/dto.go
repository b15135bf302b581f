package credit

// AdjustRequest is the admin request to change one account's balance
type AdjustRequest struct {
	AccountID string `json:"account_id" validate:"required"`
	Mode      string `json:"mode" validate:"required,adjust_mode"`
	Amount    int    `json:"amount"`
	Reason    string `json:"reason" validate:"max=500"`
}

// AdjustResponse reports the balance transition of an adjustment
type AdjustResponse struct {
	AccountID string `json:"account_id"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

// GrantAllRequest is the admin request to credit every account
type GrantAllRequest struct {
	Amount int    `json:"amount" validate:"required,gte=1"`
	Reason string `json:"reason" validate:"max=500"`
}

// GrantAllResponse reports how many accounts a bulk grant reached
type GrantAllResponse struct {
	Amount   int `json:"amount"`
	Accounts int `json:"accounts"`
}

// BalanceResponse carries a single account balance
type BalanceResponse struct {
	AccountID string `json:"account_id"`
	Balance   int    `json:"balance"`
}

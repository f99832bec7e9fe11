package ipc

import "nftpin/internal/pinstore"

// Token identifies a token on the wire.
type Token struct {
	Coin     int    `json:"coin"`
	ChainID  string `json:"chain_id"`
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`
}

// TokenFromKey converts a record store key.
func TokenFromKey(key pinstore.TokenKey) Token {
	return Token{Coin: key.CoinType, ChainID: key.ChainID, Contract: key.Contract, TokenID: key.TokenID}
}

// Key converts back to a record store key. Tokens sent over IPC are always NFTs.
func (t Token) Key() pinstore.TokenKey {
	return pinstore.TokenKey{CoinType: t.Coin, ChainID: t.ChainID, Contract: t.Contract, TokenID: t.TokenID, IsNFT: true}
}

// Record is one pin record.
type Record struct {
	Path          string   `json:"path"`
	Service       string   `json:"service"`
	Token         Token    `json:"token"`
	Status        string   `json:"status"`
	CIDs          []string `json:"cids"`
	ErrorCode     string   `json:"error_code,omitempty"`
	ErrorMessage  string   `json:"error_message,omitempty"`
	LastValidated string   `json:"last_validated,omitempty"`
}

// CheckResult mirrors a preflight result.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon and scheduler status.
type StatusResponse struct {
	Running        bool           `json:"running"`
	PID            int            `json:"pid"`
	AutoPinEnabled bool           `json:"autopin_enabled"`
	KnownTokens    int            `json:"known_tokens"`
	Current        string         `json:"current"`
	Queue          []string       `json:"queue"`
	PendingRetries int            `json:"pending_retries"`
	Restoring      bool           `json:"restoring"`
	StatusCounts   map[string]int `json:"status_counts"`
	StorePath      string         `json:"store_path"`
	LockPath       string         `json:"lock_path"`
	Preflight      []CheckResult  `json:"preflight"`
}

// ListRequest filters records by status token.
type ListRequest struct {
	Statuses []string `json:"statuses"`
}

// ListResponse carries pin records.
type ListResponse struct {
	Records []Record `json:"records"`
}

// SetAutoPinRequest switches auto-pin.
type SetAutoPinRequest struct {
	Enabled bool `json:"enabled"`
}

// SetAutoPinResponse reports the resulting flag.
type SetAutoPinResponse struct {
	Enabled bool `json:"enabled"`
}

// RestoreRequest re-runs reconciliation.
type RestoreRequest struct{}

// RestoreResponse acknowledges a restore.
type RestoreResponse struct{}

// ResetRequest unpins and forgets everything.
type ResetRequest struct{}

// ResetResponse acknowledges a reset.
type ResetResponse struct {
	Message string `json:"message"`
}

// TokenRequest targets one token.
type TokenRequest struct {
	Token Token `json:"token"`
}

// OperationResponse reports a manual pin, unpin, or validate.
type OperationResponse struct {
	Success      bool   `json:"success"`
	Outcome      string `json:"outcome,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Record       Record `json:"record"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether a notification was sent.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

package pinstore

import (
	"fmt"
)

// PinStatus is the lifecycle state of one token's pin.
type PinStatus string

const (
	StatusNotPinned           PinStatus = "not_pinned"
	StatusPinningPending      PinStatus = "pinning_pending"
	StatusPinningInProgress   PinStatus = "pinning_in_progress"
	StatusPinned              PinStatus = "pinned"
	StatusPinningFailed       PinStatus = "pinning_failed"
	StatusUnpinningPending    PinStatus = "unpinning_pending"
	StatusUnpinningInProgress PinStatus = "unpinning_in_progress"
	StatusUnpinningFailed     PinStatus = "unpinning_failed"
)

var allStatuses = []PinStatus{
	StatusNotPinned,
	StatusPinningPending,
	StatusPinningInProgress,
	StatusPinned,
	StatusPinningFailed,
	StatusUnpinningPending,
	StatusUnpinningInProgress,
	StatusUnpinningFailed,
}

// Stored tokens for the two pending states keep their historical spelling so
// existing databases stay readable.
var storedTokens = map[PinStatus]string{
	StatusPinningPending:   "pinning_pendig",
	StatusUnpinningPending: "unpinning_pendig",
}

var statusByToken = func() map[string]PinStatus {
	out := make(map[string]PinStatus, len(allStatuses))
	for _, status := range allStatuses {
		out[status.Token()] = status
	}
	return out
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []PinStatus {
	return append([]PinStatus(nil), allStatuses...)
}

// Token returns the serialized form of the status.
func (s PinStatus) Token() string {
	if token, ok := storedTokens[s]; ok {
		return token
	}
	return string(s)
}

// ParseStatus maps a serialized token back to its status.
func ParseStatus(token string) (PinStatus, error) {
	status, ok := statusByToken[token]
	if !ok {
		return "", fmt.Errorf("unknown pin status %q", token)
	}
	return status, nil
}

// MarshalText implements encoding.TextMarshaler using the stored token.
func (s PinStatus) MarshalText() ([]byte, error) {
	if s == "" {
		s = StatusNotPinned
	}
	return []byte(s.Token()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PinStatus) UnmarshalText(text []byte) error {
	status, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = status
	return nil
}

// ErrorCode classifies a pin failure.
type ErrorCode string

const (
	ErrCodeWrongToken          ErrorCode = "ERR_WRONG_TOKEN"
	ErrCodeNonIPFSTokenURL     ErrorCode = "ERR_NON_IPFS_TOKEN_URL"
	ErrCodeFetchMetadataFailed ErrorCode = "ERR_FETCH_METADATA_FAILED"
	ErrCodeWrongMetadataFormat ErrorCode = "ERR_WRONG_METADATA_FORMAT"
	ErrCodeAlreadyPinned       ErrorCode = "ERR_ALREADY_PINNED"
	ErrCodeNotPinned           ErrorCode = "ERR_NOT_PINNED"
	ErrCodePinningFailed       ErrorCode = "ERR_PINNING_FAILED"
)

var knownErrorCodes = map[ErrorCode]struct{}{
	ErrCodeWrongToken:          {},
	ErrCodeNonIPFSTokenURL:     {},
	ErrCodeFetchMetadataFailed: {},
	ErrCodeWrongMetadataFormat: {},
	ErrCodeAlreadyPinned:       {},
	ErrCodeNotPinned:           {},
	ErrCodePinningFailed:       {},
}

// Valid reports whether c is one of the known codes.
func (c ErrorCode) Valid() bool {
	_, ok := knownErrorCodes[c]
	return ok
}

// Retryable reports whether the scheduler may retry a failure with this code.
// Tokens whose metadata does not live on IPFS never become pinnable.
func (c ErrorCode) Retryable() bool {
	return c != ErrCodeNonIPFSTokenURL
}

// PinError is the structured error stored alongside a record.
type PinError struct {
	Code    ErrorCode `json:"error_code"`
	Message string    `json:"error_message"`
}

// NewPinError builds a PinError.
func NewPinError(code ErrorCode, message string) *PinError {
	return &PinError{Code: code, Message: message}
}

func (e *PinError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Retryable follows the code. A failure without a recorded error is retryable.
func (e *PinError) Retryable() bool {
	return e == nil || e.Code.Retryable()
}

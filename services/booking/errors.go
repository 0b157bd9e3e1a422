package booking

import "fmt"

// Error codes for booking operations. Handlers map these onto HTTP statuses.
const (
	CodeValidation         = "ValidationError"
	CodeCoachNotPayable    = "CoachNotPayable"
	CodeConflict           = "Conflict"
	CodeGatewayDeclined    = "GatewayDeclined"
	CodeGatewayUnavailable = "GatewayUnavailable"
	CodeAlreadyCaptured    = "AlreadyCaptured"
	CodeAlreadyCanceled    = "AlreadyCanceled"
	CodeNotFound           = "NotFound"
	CodeUnauthorized       = "Unauthorized"
)

// LedgerError is a typed booking failure carrying one of the codes above.
type LedgerError struct {
	Code    string
	Message string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewLedgerError(code, msg string) error {
	return &LedgerError{Code: code, Message: msg}
}

// CodeOf extracts the error code, or empty when err is not a LedgerError.
func CodeOf(err error) string {
	if le, ok := err.(*LedgerError); ok {
		return le.Code
	}
	return ""
}

// Retryable reports whether the failure is transient and eligible for
// out-of-band retry rather than a fatal outcome.
func Retryable(err error) bool {
	return CodeOf(err) == CodeGatewayUnavailable
}

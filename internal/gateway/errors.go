package gateway

import "fmt"

// GatewayError is raised when a rail returns a non-2xx or malformed response.
// The orchestrator records it on the transaction as the failure reason; the
// create call is never retried automatically because retrying risks
// double-charging.
type GatewayError struct {
	Provider   string
	HTTPStatus int
	RawBody    string
	Err        error
}

func (e *GatewayError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("gateway %s: http %d: %v", e.Provider, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Provider, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

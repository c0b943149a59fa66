package marketplace

import "fmt"

// Platform error codes returned in the response envelope.
const (
	// CodeAccessTokenExpired is the platform's "expired credentials"
	// code. It is the only error the engine recovers from locally, via
	// a single forced refresh and retry.
	CodeAccessTokenExpired = 105002
)

// APIError is a non-zero platform response code with its message.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace api error %d: %s", e.Code, e.Message)
}

// AuthExpired marks the expired-credentials code for domain.IsAuthExpired.
func (e *APIError) AuthExpired() bool {
	return e.Code == CodeAccessTokenExpired
}

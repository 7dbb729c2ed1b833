package loki

import "fmt"

// Delivery stages a DeliveryError can come from.
const (
	OpEncode  = "encode"
	OpRequest = "request"
	OpStatus  = "status"
)

// DeliveryError reports a record that did not reach Loki. It is never
// returned past the Deliver boundary.
type DeliveryError struct {
	Op         string
	URL        string
	StatusCode int    // set for OpStatus
	Body       string // truncated response body, set for OpStatus
	Err        error
}

func (e *DeliveryError) Error() string {
	switch e.Op {
	case OpStatus:
		if e.Body != "" {
			return fmt.Sprintf("loki push to %s failed: HTTP %d: %s", e.URL, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("loki push to %s failed: HTTP %d", e.URL, e.StatusCode)
	case OpEncode:
		return fmt.Sprintf("loki push: encode failed: %v", e.Err)
	default:
		return fmt.Sprintf("loki push to %s failed: %v", e.URL, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

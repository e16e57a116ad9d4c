package client

import "fmt"

// TimeoutError reports a request that exceeded the client deadline.
type TimeoutError struct {
	URL string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request timed out: %s", e.URL)
}

// MalformedResponseError reports a response the service did deliver
// but whose body did not carry the expected shape. Distinct from
// NetworkError: the connection worked, the payload is wrong.
type MalformedResponseError struct {
	URL    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.URL, e.Reason)
}

// NetworkError reports a transport-level failure before any response
// was received.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request failed: %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

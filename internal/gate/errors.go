package gate

import "net/http"

// loadingError rejects a generation while the model is still loading.
type loadingError struct{}

func (loadingError) Error() string { return "loading" }
func (loadingError) StatusCode() int { return http.StatusServiceUnavailable }

// failedError rejects a generation after the model failed to load.
type failedError struct{ cause error }

func (e failedError) Error() string {
	if e.cause == nil {
		return "loading failed"
	}
	return "loading failed: " + e.cause.Error()
}
func (e failedError) Unwrap() error { return e.cause }
func (failedError) StatusCode() int { return http.StatusServiceUnavailable }

// busyError rejects a generation while another one is in flight.
type busyError struct{}

func (busyError) Error() string { return "busy" }
func (busyError) StatusCode() int { return http.StatusServiceUnavailable }

var (
	// ErrLoading is returned by Acquire before MarkReady.
	ErrLoading error = loadingError{}
	// ErrBusy is returned by Acquire while a lease is held.
	ErrBusy error = busyError{}
)

// IsLoading reports whether err means the model is not ready yet.
func IsLoading(err error) bool {
	_, ok := err.(loadingError)
	return ok
}

// IsFailed reports whether err means the model never became ready.
func IsFailed(err error) bool {
	_, ok := err.(failedError)
	return ok
}

// IsBusy reports whether err means another generation holds the gate.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

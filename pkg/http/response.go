package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// maxErrorBody bounds how much of an error response is kept for messages
const maxErrorBody = 512

// ReadResponseBody reads and closes HTTP response body
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Error("Failed to close response body", "error", closeErr)
		}
	}()
	return io.ReadAll(resp.Body)
}

// EnsureStatusOK checks if the response status is 200 OK
func EnsureStatusOK(resp *http.Response) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// EnsureSuccess accepts any 2xx status. On failure a short excerpt of the
// body is included in the error and the body is closed.
func EnsureSuccess(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(excerpt) > 0 {
		return fmt.Errorf("unexpected status code: %d: %s", resp.StatusCode, excerpt)
	}
	return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
}

// Package netx holds small HTTP helpers shared by client code.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusError is a non-2xx answer from an object store.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upload failed: %s; body: %s", e.Status, e.Body)
}

// UploadPresigned PUTs body to a presigned object URL. Transport failures
// are returned as is; a rejected upload yields *StatusError.
func UploadPresigned(ctx context.Context, client *http.Client, url, contentType string, body io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Code: resp.StatusCode, Status: resp.Status, Body: string(b)}
	}
	return nil
}

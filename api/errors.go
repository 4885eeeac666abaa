package api

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/landslide-report/go-auth"
)

// ResponseError captures a non successful backend response.
type ResponseError struct {
	Endpoint  string
	Status    int
	Detail    string
	RequestID string
	Err       error
}

func (e *ResponseError) Error() string {
	if e == nil {
		return "backend error"
	}

	scope := "backend"
	if e.Endpoint != "" {
		scope = e.Endpoint
	}

	switch {
	case e.Detail != "" && e.Status != 0:
		return fmt.Sprintf("%s failed (%d): %s", scope, e.Status, e.Detail)
	case e.Detail != "":
		return fmt.Sprintf("%s failed: %s", scope, e.Detail)
	case e.Err != nil:
		return fmt.Sprintf("%s failed: %v", scope, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s failed with status %d", scope, e.Status)
	}
	return fmt.Sprintf("%s failed", scope)
}

func (e *ResponseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Metadata returns the fields attached to the classified error.
func (e *ResponseError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	if e.Endpoint != "" {
		meta["endpoint"] = e.Endpoint
	}
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if e.Detail != "" {
		meta["detail"] = e.Detail
	}
	if e.RequestID != "" {
		meta["request_id"] = e.RequestID
	}
	return meta
}

// classify maps a response error to the auth taxonomy: 5xx responses are
// treated like transport failures, other non 2xx statuses as rejections.
func classify(respErr *ResponseError) error {
	base := auth.ErrAuthRejected
	if respErr.Status >= http.StatusInternalServerError {
		base = auth.ErrNetwork
	}
	return wrapResponseError(base, respErr)
}

func transportError(endpoint, requestID string, err error) error {
	return wrapResponseError(auth.ErrNetwork, &ResponseError{
		Endpoint:  endpoint,
		RequestID: requestID,
		Err:       err,
	})
}

func malformed(endpoint, requestID string, status int, err error, reason string) error {
	respErr := &ResponseError{
		Endpoint:  endpoint,
		Status:    status,
		RequestID: requestID,
		Err:       err,
	}
	if err == nil {
		respErr.Err = errors.New(reason)
	}
	return wrapResponseError(auth.ErrMalformedResponse, respErr, map[string]any{"reason": reason})
}

func wrapResponseError(base *goerrors.Error, respErr *ResponseError, extra ...map[string]any) error {
	meta := respErr.Metadata()
	if respErr.Err != nil {
		meta["error"] = respErr.Err.Error()
	}
	for _, m := range extra {
		for k, v := range m {
			meta[k] = v
		}
	}
	return auth.NewError(base, respErr, meta)
}

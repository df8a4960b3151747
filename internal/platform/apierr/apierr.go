// Package apierr builds the go-errors envelopes that cross the HTTP boundary.
package apierr

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

const (
	CodeBadInput       = "bad_input"
	CodeNotConfigured  = "not_configured"
	CodeStorageFailed  = "storage_failed"
	CodeSignFailed     = "sign_failed"
	CodeRecordFailed   = "record_failed"
	CodeDeliveryFailed = "delivery_failed"
	CodeInternal       = "internal_error"
)

// BadInput is a client error; the request had no side effects.
func BadInput(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(CodeBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// NotConfigured reports a missing credential for the affected endpoint.
func NotConfigured(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(CodeNotConfigured)
}

// External wraps a collaborator failure for the stage named by textCode.
func External(source error, textCode string, message string) error {
	if source == nil {
		return nil
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(textCode)
}

// Status returns the HTTP status carried by err, or 500.
func Status(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= 400 && rich.Code <= 599 {
		return rich.Code
	}
	return http.StatusInternalServerError
}

// TextCode returns the machine-readable code carried by err.
func TextCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return CodeInternal
}

// Message returns the envelope message without the wrapped source chain.
func Message(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Message != "" {
		return rich.Message
	}
	return "Internal server error"
}

package domain

import "errors"

var (
	// ErrMissingCredential means a stage has no API key configured.
	ErrMissingCredential = errors.New("missing credential")
	// ErrProviderUnavailable covers transport errors, timeouts and non-2xx replies.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrUnparsableResponse means a 2xx reply had no usable text.
	ErrUnparsableResponse = errors.New("unparsable provider response")
	// ErrNotImplemented marks placeholder stages that always decline.
	ErrNotImplemented = errors.New("stage not implemented")
)

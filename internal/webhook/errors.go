package webhook

import "errors"

var (
	// ErrMalformedPayload: the body is not a usable event document. Nothing
	// was verified or written.
	ErrMalformedPayload = errors.New("malformed webhook payload")
	// ErrSignatureVerificationFailed: the provider rejected the signature or
	// the verification call itself failed. Nothing was written.
	ErrSignatureVerificationFailed = errors.New("webhook signature verification failed")
	// ErrStorageFailure: a read or write against the store failed. The
	// delivery should be retried by the provider.
	ErrStorageFailure = errors.New("webhook storage failure")
)

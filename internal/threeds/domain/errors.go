package domain

import "errors"

// Correlation failures. All of these surface as structured results to the
// immediate caller; none are fatal to the process.
var (
	ErrUnknownAttempt    = errors.New("attempt not found")
	ErrDuplicateAttempt  = errors.New("attempt already exists")
	ErrMalformedCallback = errors.New("callback payload could not be parsed")
)

// Wire-visible error codes used on ERROR results.
const (
	CodeUnsupportedCard   = "UNSUPPORTED_CARD"
	CodeUnknownBank       = "UNKNOWN_BANK"
	CodeTransportError    = "TRANSPORT_ERROR"
	CodeMalformedCallback = "MALFORMED_CALLBACK"
	CodeUnknownAttempt    = "UNKNOWN_ATTEMPT"
	CodeDuplicateAttempt  = "DUPLICATE_ATTEMPT"
	CodeBankDeclined      = "BANK_DECLINED"
)

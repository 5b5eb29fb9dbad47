// Package domain holds the canonical types shared by the 3-D Secure
// orchestrator, the bank adapters and the attempt store.
package domain

// Status represents the state of an authentication attempt.
type Status string

const (
	StatusInitiated     Status = "INITIATED"
	StatusAuthenticated Status = "AUTHENTICATED"
	StatusFailed        Status = "FAILED"
	StatusNotEnrolled   Status = "NOT_ENROLLED"
	StatusError         Status = "ERROR"
	StatusTimeout       Status = "TIMEOUT"
	StatusCancelled     Status = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed out of s.
// Every status except INITIATED is terminal.
func (s Status) IsTerminal() bool {
	return s != StatusInitiated && s != ""
}

// WireFormat identifies how a bank expects the initiation body encoded.
type WireFormat string

const (
	FormatJSON WireFormat = "JSON"
	FormatXML  WireFormat = "XML"
	FormatForm WireFormat = "FORM"
)

// ResponseFormat identifies how a bank answers the initiation call.
type ResponseFormat string

const (
	ResponseJSON     ResponseFormat = "JSON"
	ResponseXML      ResponseFormat = "XML"
	ResponseRedirect ResponseFormat = "REDIRECT"
	ResponseAutoForm ResponseFormat = "AUTO_FORM"
)

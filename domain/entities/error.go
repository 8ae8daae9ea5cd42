package entities

// ErrorKind groups errors by the subsystem that raised them.
type ErrorKind string

const (
	ErrorKindPolicy     ErrorKind = "policy"
	ErrorKindCapability ErrorKind = "capability"
	ErrorKindInstall    ErrorKind = "install"
	ErrorKindCheckpoint ErrorKind = "checkpoint"
	ErrorKindRestore    ErrorKind = "restore"
	ErrorKindExec       ErrorKind = "exec"
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindConfig     ErrorKind = "config"
	ErrorKindInternal   ErrorKind = "internal"
)

// ErrorDetail is the serialisable form of a domain error.
type ErrorDetail struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	// Subject names what failed: a capability id, file path or config field.
	Subject string `json:"subject,omitempty"`
	// Retryable is set when repeating the operation later may succeed.
	Retryable bool `json:"retryable,omitempty"`
}

// Error implements the error interface.
func (e *ErrorDetail) Error() string {
	if e == nil {
		return ""
	}
	if e.Kind == "" || e.Kind == ErrorKindInternal {
		return e.Message
	}
	prefix := string(e.Kind)
	if e.Code != "" {
		prefix += "/" + e.Code
	}
	return prefix + ": " + e.Message
}

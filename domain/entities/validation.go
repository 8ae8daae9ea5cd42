package entities

// ValidationResult is the outcome of validating a capability catalog.
type ValidationResult struct {
	Errors []ValidationError `json:"errors,omitempty"`
	Valid  bool              `json:"valid"`
}

// ValidationError locates one problem by its JSON path in the catalog.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Add records an error and marks the result invalid.
func (r *ValidationResult) Add(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

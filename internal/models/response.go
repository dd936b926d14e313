package models

// APIResponse is the envelope every JSON endpoint answers with.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func NewSuccessResponse(data interface{}) APIResponse {
	return APIResponse{Success: true, Data: data}
}

func NewErrorResponse(message string) APIResponse {
	return APIResponse{Success: false, Error: message}
}

// NewValidationErrorResponse reports per-field problems keyed by form field name.
func NewValidationErrorResponse(fields map[string]string) APIResponse {
	return APIResponse{
		Success: false,
		Error:   "Validation failed",
		Errors:  fields,
	}
}

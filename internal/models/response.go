package models

// APIResponse is the envelope every endpoint returns.
type APIResponse struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data"`
	Message string        `json:"message"`
	Errors  []ErrorDetail `json:"errors"`
}

type ErrorDetail struct {
	Kind    string `json:"kind"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

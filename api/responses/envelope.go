package responses

// SuccessEnvelope wraps every successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the structured half of an error body.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope carries a flat detail string for simple clients next to the
// structured error.
type ErrorEnvelope struct {
	Detail string   `json:"detail"`
	Error  APIError `json:"error"`
}

package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Pager reports pagination parameters back alongside a list payload.
type Pager interface {
	PageNumber() int
	PageLimit() int
}

// ListResponse wraps a paginated list with its total and page parameters
type ListResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total"`
	Page   int         `json:"page"`
	Limit  int         `json:"limit"`
}

// Paginated returns a standard paginated list response
func Paginated(data interface{}, total int64, p Pager) ListResponse {
	return ListResponse{
		Status: "success",
		Data:   data,
		Total:  total,
		Page:   p.PageNumber(),
		Limit:  p.PageLimit(),
	}
}

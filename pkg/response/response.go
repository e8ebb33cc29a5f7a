package response

// Response represents the standard API envelope
type Response struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message,omitempty"`
	Data    interface{}            `json:"data,omitempty"`
	Error   string                 `json:"error,omitempty"` // machine-readable code, e.g. VALIDATION_ERROR
	Details map[string]interface{} `json:"details,omitempty"`
}

// PageMeta describes one page of a list result
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// Page wraps list items with their pagination metadata
type Page struct {
	Items interface{} `json:"items"`
	Meta  PageMeta    `json:"meta"`
}

// Success returns a standard success response wrapping the data
func Success(message string, data interface{}) Response {
	return Response{
		Success: true,
		Message: message,
		Data:    data,
	}
}

// Paginated returns a success response for one page of items
func Paginated(items interface{}, page, limit int, total int64) Response {
	totalPages := int64(0)
	if limit > 0 {
		totalPages = (total + int64(limit) - 1) / int64(limit)
	}
	return Success("OK", Page{
		Items: items,
		Meta: PageMeta{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Error returns a standard error response
func Error(code, message string, details map[string]interface{}) Response {
	if len(details) == 0 {
		details = nil
	}
	return Response{
		Success: false,
		Message: message,
		Error:   code,
		Details: details,
	}
}

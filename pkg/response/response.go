package response

import "opsboard/pkg/pagination"

// Response is the envelope every endpoint answers with.
type Response struct {
	Status     string `json:"status"`      // "success" or "error"
	StatusCode int    `json:"status_code"` // HTTP status code
	Data       any    `json:"data,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ListResponse carries one page of items and the window they came from. Data is kept
// even when the page is empty.
type ListResponse struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Data       any    `json:"data"`
	Total      int64  `json:"total"`
	Page       int    `json:"page"`
	Limit      int    `json:"limit"`
}

func Success(statusCode int, data any) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

func List[T any](statusCode int, items []T, total int64, page pagination.Params) ListResponse {
	if items == nil {
		items = []T{}
	}
	return ListResponse{
		Status:     "success",
		StatusCode: statusCode,
		Data:       items,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
	}
}

func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

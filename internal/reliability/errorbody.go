package reliability

// ErrorBody is the JSON body of every caller-visible failure, sent either as the HTTP
// response or, once a stream is committed, as its final in-band frame.
type ErrorBody struct {
	Error          string `json:"error"`
	Code           string `json:"code"`
	Retryable      bool   `json:"retryable"`
	RequestID      string `json:"requestId"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

func NewErrorBody(code string, retryable bool, requestID string, upstreamStatus int, detail string) ErrorBody {
	return ErrorBody{
		Error:          code,
		Code:           code,
		Retryable:      retryable,
		RequestID:      requestID,
		UpstreamStatus: upstreamStatus,
		Detail:         detail,
	}
}

// Body renders a classification for the caller.
func (c Classification) Body(requestID string, upstreamStatus int) ErrorBody {
	return NewErrorBody(string(c.Code), c.Retryable, requestID, upstreamStatus, c.Detail)
}

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ResponseCode is the provider status code. The provider has been observed to
// send it both as a JSON number and as a string.
type ResponseCode string

func (c *ResponseCode) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*c = ""
		return nil
	}

	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = ResponseCode(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("response code must be a number or string: %w", err)
	}
	*c = ResponseCode(n.String())
	return nil
}

func (c ResponseCode) String() string { return string(c) }

// MessageResult is the provider's per-message outcome, when reported.
type MessageResult struct {
	No     string       `json:"no"`
	Code   ResponseCode `json:"code"`
	Reason string       `json:"msg,omitempty"`
}

// ResponseMessage is the provider acknowledgement of a dispatch.
type ResponseMessage struct {
	Code    ResponseCode    `json:"code"`
	Message string          `json:"msg,omitempty"`
	Results []MessageResult `json:"results,omitempty"`
}

func (r *ResponseMessage) String() string {
	if r == nil {
		return "<nil>"
	}
	if r.Message == "" {
		return fmt.Sprintf("code=%s", r.Code)
	}
	return fmt.Sprintf("code=%s msg=%s", r.Code, r.Message)
}

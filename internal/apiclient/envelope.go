package apiclient

import (
	"context"
	"net/url"
)

// Envelope is the backend's standard response wrapper.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    T      `json:"data"`
}

// Call sends r and decodes the response into target using Decode's failure
// policy. defaultMsg names the operation for unparsable error bodies.
func (c *Client) Call(ctx context.Context, r *Request, defaultMsg string, target interface{}) error {
	resp, err := c.Send(ctx, r)
	if err != nil {
		return err
	}
	return Decode(resp, defaultMsg, target)
}

// Path joins a resource prefix and an id escaped as one path segment.
func Path(prefix, id string) string {
	return prefix + "/" + url.PathEscape(id)
}

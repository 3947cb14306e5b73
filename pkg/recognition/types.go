// Package recognition is the client for the facial recognition backend:
// it submits an encoded frame plus optional account fields and decodes the
// match decision.
package recognition

import (
	"encoding/json"
	"fmt"
)

// Request is the body of an enrollment or verification submission.
// It is sent as a flat JSON object: {"image": ..., <field>: <value>, ...}.
type Request struct {
	// Image is the captured frame as a data URL.
	Image string

	// Fields are extra form values, such as the account identifier.
	Fields map[string]string
}

// MarshalJSON flattens Fields next to the image.
// The image key always wins over a field of the same name.
func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(r.Fields)+1)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["image"] = r.Image
	return json.Marshal(m)
}

// Outcome is the decision carried by a Response.
type Outcome int

const (
	// Rejected means the backend answered with success=false.
	Rejected Outcome = iota
	// Accepted means the backend answered with success=true.
	Accepted
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == Accepted {
		return "accepted"
	}
	return "rejected"
}

// User is the account the backend matched, when it echoes one.
type User struct {
	ID       int    `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// Response is the backend's decision.
type Response struct {
	Success     bool     `json:"success"`
	Message     string   `json:"message"`
	RedirectURL string   `json:"redirect_url,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty"`
	User        *User    `json:"user,omitempty"`
}

// Outcome returns Accepted or Rejected.
func (r *Response) Outcome() Outcome {
	if r.Success {
		return Accepted
	}
	return Rejected
}

// HasRedirect reports whether the backend named a page to navigate to.
func (r *Response) HasRedirect() bool {
	return r.RedirectURL != ""
}

// decodeResponse parses a response body, requiring the success flag.
func decodeResponse(body []byte) (*Response, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if _, ok := raw["success"]; !ok {
		return nil, fmt.Errorf("%w: missing success flag", ErrInvalidResponse)
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &resp, nil
}

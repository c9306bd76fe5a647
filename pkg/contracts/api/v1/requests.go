// Package api contains the wire contracts of the langworker HTTP API.
// Version v1 is the only API version.
package api

// CheckRequest is the body of POST / and POST /check, sent as JSON or as an
// HTML form. A body with any other content type is used as Text verbatim.
type CheckRequest struct {
	Text           string `json:"text" form:"text" validate:"required"`
	MaxSuggestions int    `json:"max_suggestions,omitempty" form:"max_suggestions" validate:"gte=0,lte=100"`
	Locale         string `json:"locale,omitempty" form:"locale" validate:"omitempty,max=35"`
}

package usecase

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/totoufu/archi-input/internal/domain"
)

// MalformedResponseError reports a model reply that did not decode into
// the expected JSON shape. Raw keeps the original text for diagnostics.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?[ \t]*\n?")
	fenceClose = regexp.MustCompile("\n?[ \t]*```$")
)

// unwrapFences strips a leading/trailing markdown code fence if present.
// Anything else malformed is left for the JSON decoder to reject.
func unwrapFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = fenceOpen.ReplaceAllString(trimmed, "")
	trimmed = fenceClose.ReplaceAllString(trimmed, "")
	return strings.TrimSpace(trimmed)
}

// modelReply mirrors the JSON object the analyze prompts request.
// Pointer fields keep null and missing distinguishable from "".
type modelReply struct {
	Title       *string `json:"title"`
	Architect   *string `json:"architect"`
	Year        *int    `json:"year"`
	Country     *string `json:"country"`
	City        *string `json:"city"`
	Usage       *string `json:"usage"`
	Structure   *string `json:"structure"`
	Description *string `json:"description"`
}

// parseEnrichment unwraps formatting fences and decodes the reply into a
// normalized record. Null/missing optional strings become ""; year is
// passed through untouched; title falls back to fallbackTitle when the
// model returned none.
func parseEnrichment(raw, fallbackTitle string) (domain.Enrichment, error) {
	var reply modelReply
	if err := json.Unmarshal([]byte(unwrapFences(raw)), &reply); err != nil {
		return domain.Enrichment{}, &MalformedResponseError{Raw: raw, Err: err}
	}

	title := stringOrEmpty(reply.Title)
	if title == "" {
		title = fallbackTitle
	}

	return domain.Enrichment{
		Title:       title,
		Architect:   stringOrEmpty(reply.Architect),
		Year:        reply.Year,
		Country:     stringOrEmpty(reply.Country),
		City:        stringOrEmpty(reply.City),
		Usage:       stringOrEmpty(reply.Usage),
		Structure:   stringOrEmpty(reply.Structure),
		Description: stringOrEmpty(reply.Description),
	}, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package screening

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DotoriPicnic/condition-pick/internal/apperrors"
)

// Markers the screening program prints around its JSON payload.
const (
	StartSentinel = "JSON_RESULT_START"
	EndSentinel   = "JSON_RESULT_END"
)

const utf8BOM = "\ufeff"

var (
	errEmptyOutput = errors.New("no output to parse")
	errNotObject   = errors.New("payload is not a JSON object")
	errNoResult    = errors.New("payload has no result array")
)

// payload is the document the screening program prints.
type payload struct {
	Success       *bool   `json:"success"`
	Error         string  `json:"error"`
	ConditionName string  `json:"condition_name"`
	Count         *int    `json:"count"`
	Items         *[]Item `json:"result"`
}

// Extract locates and decodes the JSON payload in the program's stdout.
//
// The payload is the text between the first StartSentinel and the first
// EndSentinel after it. Without both markers the whole trimmed output is
// used instead. A payload with success=false becomes an ErrScreener error.
// Anything that does not decode to an object with a result array becomes
// ErrParse, so a stray document never replaces a good result.
func Extract(stdout string, now time.Time) (*Result, error) {
	candidate := Candidate(stdout)
	if candidate == "" {
		return nil, apperrors.Parse(stdout, errEmptyOutput)
	}

	var p *payload
	if err := json.Unmarshal([]byte(candidate), &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			err = errNotObject
		}
		return nil, apperrors.Parse(candidate, err)
	}
	if p == nil {
		return nil, apperrors.Parse(candidate, errNotObject)
	}

	if p.Success != nil && !*p.Success {
		return nil, apperrors.Screener(p.Error)
	}

	if p.Items == nil {
		return nil, apperrors.Parse(candidate, errNoResult)
	}
	items := *p.Items
	if items == nil {
		items = []Item{}
	}
	if p.Count != nil && *p.Count != len(items) {
		slog.Warn("Screener count disagrees with result length, using result length",
			"reported", *p.Count, "items", len(items))
	}

	return &Result{
		ConditionName: p.ConditionName,
		Count:         len(items),
		Items:         items,
		RetrievedAt:   now,
	}, nil
}

// Candidate returns the text Extract would try to decode.
func Candidate(stdout string) string {
	stdout = strings.TrimPrefix(stdout, utf8BOM)

	if _, afterStart, ok := strings.Cut(stdout, StartSentinel); ok {
		if inner, _, ok := strings.Cut(afterStart, EndSentinel); ok {
			return strings.TrimSpace(inner)
		}
	}
	return strings.TrimSpace(stdout)
}

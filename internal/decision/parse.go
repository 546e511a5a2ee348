package decision

import (
	"encoding/json"
	"fmt"
	"strings"

	"tradeloop/internal/models"
)

// MalformedResponseError reports a decision model response that could
// not be parsed as a JSON decision array. It carries the raw text for
// logging; the caller treats the round as an empty decision set.
type MalformedResponseError struct {
	Raw string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed decision response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

type rawDecision struct {
	Symbol   string   `json:"symbol"`
	Decision string   `json:"decision"`
	Amount   *float64 `json:"amount"`
}

// parseDecisions strips Markdown code fences, parses the JSON array and
// validates each entry. The model is untrusted input: individual
// malformed entries are dropped, only an unparsable array is an error.
func parseDecisions(response string) ([]models.Decision, []string, error) {
	cleaned := strings.ReplaceAll(response, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	var raw []rawDecision
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, nil, &MalformedResponseError{Raw: response, Err: err}
	}

	decisions := make([]models.Decision, 0, len(raw))
	var dropped []string
	for _, r := range raw {
		action := models.Action(strings.ToLower(strings.TrimSpace(r.Decision)))
		symbol := strings.TrimSpace(r.Symbol)

		switch {
		case symbol == "":
			dropped = append(dropped, "entry with empty symbol")
		case !action.Valid():
			dropped = append(dropped, fmt.Sprintf("%s: unknown decision %q", symbol, r.Decision))
		case r.Amount == nil || *r.Amount < 0:
			dropped = append(dropped, fmt.Sprintf("%s: invalid amount", symbol))
		default:
			decisions = append(decisions, models.Decision{
				Symbol: symbol,
				Action: action,
				Amount: *r.Amount,
			})
		}
	}
	return decisions, dropped, nil
}

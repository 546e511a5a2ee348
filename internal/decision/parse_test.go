package decision

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"tradeloop/internal/models"
)

func TestParseDecisionsStripsCodeFences(t *testing.T) {
	t.Parallel()

	response := "```json\n[{\"symbol\": \"AAPL\", \"decision\": \"buy\", \"amount\": 500.50}]\n```"

	decisions, dropped, err := parseDecisions(response)
	assert.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Equal(t, []models.Decision{
		{Symbol: "AAPL", Action: models.ActionBuy, Amount: 500.50},
	}, decisions)
}

func TestParseDecisionsBareArray(t *testing.T) {
	t.Parallel()

	decisions, dropped, err := parseDecisions(`[{"symbol": "TSLA", "decision": "sell", "amount": 1600}]`)
	assert.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Len(t, decisions, 1)
	assert.Equal(t, models.ActionSell, decisions[0].Action)
}

func TestParseDecisionsEmptyArray(t *testing.T) {
	t.Parallel()

	decisions, dropped, err := parseDecisions("```json\n[]\n```")
	assert.NoError(t, err)
	assert.Empty(t, dropped)
	assert.Empty(t, decisions)
}

func TestParseDecisionsNotJSON(t *testing.T) {
	t.Parallel()

	_, _, err := parseDecisions("I think you should buy AAPL.")
	assert.Error(t, err)

	var malformed *MalformedResponseError
	assert.True(t, errors.As(err, &malformed))
	assert.Equal(t, "I think you should buy AAPL.", malformed.Raw)
}

func TestParseDecisionsDropsInvalidEntriesIndividually(t *testing.T) {
	t.Parallel()

	response := `[
		{"symbol": "AAPL", "decision": "buy", "amount": 100},
		{"symbol": "", "decision": "buy", "amount": 100},
		{"symbol": "MSFT", "decision": "yolo", "amount": 100},
		{"symbol": "NVDA", "decision": "sell"},
		{"symbol": "AMD", "decision": "sell", "amount": -5},
		{"symbol": "GOOG", "decision": "HOLD", "amount": 0}
	]`

	decisions, dropped, err := parseDecisions(response)
	assert.NoError(t, err)
	assert.Len(t, dropped, 4)

	// Valid entries survive, including mixed-case actions.
	assert.Equal(t, []models.Decision{
		{Symbol: "AAPL", Action: models.ActionBuy, Amount: 100},
		{Symbol: "GOOG", Action: models.ActionHold, Amount: 0},
	}, decisions)
}

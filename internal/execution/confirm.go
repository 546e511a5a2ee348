package execution

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/shopspring/decimal"

	"tradeloop/internal/models"
)

// SurveyConfirm prompts on the terminal before each order. A declined
// or interrupted prompt cancels the order.
func SurveyConfirm(symbol string, side models.Side, amount decimal.Decimal) bool {
	confirmed := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Submit %s order: %s for $%s?", side, symbol, amount.StringFixed(2)),
		Default: true,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false
	}
	return confirmed
}

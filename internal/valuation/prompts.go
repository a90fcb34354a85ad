package valuation

import (
	"fmt"
	"strings"

	"github.com/bargainlabs/dealhound/pkg/openai"
)

const (
	// preprocessPrompt asks the cheap model for a retrieval-friendly summary.
	preprocessPrompt = "Reply with a 2-3 sentence summary of this product. This will be used to find similar products so it should be clear, concise, complete. Details:\n"

	// pricingSystem restricts the pricing model to a bare numeral.
	pricingSystem = "You estimate prices of items. Reply only with the price, no explanation"

	// pricingPrimer ends the transcript mid-sentence so the completion can
	// only continue with the number itself.
	pricingPrimer = "Price is $"

	// priceReplyMaxTokens caps the pricing reply; only a numeral is expected.
	priceReplyMaxTokens = 8

	contextHeader = "To provide some context, here are some other items that might be similar to the item you need to estimate.\n\n"
)

// makeContext lists each neighbor's description and recorded price for
// grounding the pricing prompt.
func makeContext(similars []string, prices []float64) string {
	var b strings.Builder
	b.WriteString(contextHeader)
	for i, similar := range similars {
		var price float64
		if i < len(prices) {
			price = prices[i]
		}
		fmt.Fprintf(&b, "Potentially related product:\n%s\nPrice is $%.2f\n\n", similar, price)
	}
	return b.String()
}

// pricingMessages builds the grounded completion transcript: system
// instruction, neighbor context plus the question, and the primer fragment.
func pricingMessages(description string, similars []string, prices []float64) []openai.Message {
	userPrompt := makeContext(similars, prices)
	userPrompt += "And now the question for you:\n\n"
	userPrompt += "How much does this cost?\n\n" + description

	return []openai.Message{
		{Role: "system", Content: pricingSystem},
		{Role: "user", Content: userPrompt},
		{Role: "assistant", Content: pricingPrimer},
	}
}

package marketdata

import (
	"math"
	"regexp"

	"tradeloop/internal/models"
)

// Headline sentiment is a crude word-pattern score in [-1, 1]. It only
// nudges the decision prompt, so a small lexicon is enough.
var (
	positivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(surge|soar|rally|jump|gain|beat|record|upgrade|outperform)\b`),
		regexp.MustCompile(`(?i)\b(growth|profit|strong|bullish|upbeat|optimistic|momentum)\b`),
		regexp.MustCompile(`(?i)\b(undervalued|oversold|opportunity|breakthrough|expansion)\b`),
	}
	negativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(plunge|slump|tumble|drop|fall|miss|downgrade|underperform)\b`),
		regexp.MustCompile(`(?i)\b(loss|weak|bearish|lawsuit|recall|layoff|bankruptcy)\b`),
		regexp.MustCompile(`(?i)\b(overvalued|overbought|risk|decline|warning|probe)\b`),
	}
)

// scoreHeadlines averages the per-headline sentiment of every title.
func scoreHeadlines(news []models.NewsHeadline) float64 {
	if len(news) == 0 {
		return 0
	}

	total := 0.0
	for _, item := range news {
		total += scoreText(item.Title)
	}
	return math.Round(total/float64(len(news))*1000) / 1000
}

func scoreText(text string) float64 {
	pos, neg := 0, 0
	for _, p := range positivePatterns {
		pos += len(p.FindAllString(text, -1))
	}
	for _, p := range negativePatterns {
		neg += len(p.FindAllString(text, -1))
	}

	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

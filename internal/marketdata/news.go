package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"tradeloop/internal/models"
)

// newsClient pulls recent headlines from the Yahoo Finance search
// endpoint. Headlines are informational input for the decision prompt,
// nothing downstream depends on them being present.
type newsClient struct {
	client *resty.Client
}

func newNewsClient() *newsClient {
	client := resty.New()
	client.SetBaseURL("https://query2.finance.yahoo.com")
	client.SetTimeout(15 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0")

	return &newsClient{client: client}
}

type yahooSearchResponse struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

func (n *newsClient) headlines(ctx context.Context, symbol string, count int) ([]models.NewsHeadline, error) {
	resp, err := n.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":         symbol,
			"newsCount": fmt.Sprintf("%d", count),
		}).
		Get("/v1/finance/search")
	if err != nil {
		return nil, fmt.Errorf("news %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("news %s: status %d", symbol, resp.StatusCode())
	}

	var parsed yahooSearchResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("news %s: decode: %w", symbol, err)
	}

	items := make([]models.NewsHeadline, 0, len(parsed.News))
	for _, item := range parsed.News {
		published := ""
		if item.ProviderPublishTime > 0 {
			published = time.Unix(item.ProviderPublishTime, 0).UTC().Format("2006-01-02 15:04:05")
		}
		items = append(items, models.NewsHeadline{
			Title:       item.Title,
			Publisher:   item.Publisher,
			PublishedAt: published,
		})
	}
	return items, nil
}

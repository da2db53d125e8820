// Package llm implements the AI extraction port on the OpenAI API.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"closet_server/config"
	"closet_server/core/domain"
	"closet_server/core/port/out"
	"closet_server/pkg/httputil"
	"closet_server/pkg/logger"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
)

const systemPrompt = `You extract purchased clothing items from retailer order confirmation emails.
Respond with a JSON object holding an "items" array. Each item has these fields:
brand, name, price, originalPrice, discount, size, color, quantity, imageUrl, productLink, category.
Use numbers for price, originalPrice and quantity; use empty strings for unknown text fields.
Only include purchased products. Ignore shipping lines, totals, taxes and recommendations.
Return {"items": []} when the email contains no purchased products.`

// OpenAIExtractor calls the chat completion API in JSON mode. A circuit
// breaker sheds load when the API degrades.
type OpenAIExtractor struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	breaker     *gobreaker.CircuitBreaker
}

var _ out.ItemExtractor = (*OpenAIExtractor)(nil)

func NewOpenAIExtractor(cfg *config.Config) *OpenAIExtractor {
	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientConfig.HTTPClient = httputil.OpenAIClient()

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openai",
		MaxRequests: 3,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[OpenAIExtractor] Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &OpenAIExtractor{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.LLMModel,
		maxTokens:   cfg.LLMMaxTokens,
		temperature: float32(cfg.LLMTemperature),
		timeout:     timeout,
		breaker:     breaker,
	}
}

// extractedPayload is the model's response envelope.
type extractedPayload struct {
	Items []struct {
		Brand         string  `json:"brand"`
		Name          string  `json:"name"`
		Price         float64 `json:"price"`
		OriginalPrice float64 `json:"originalPrice"`
		Discount      string  `json:"discount"`
		Size          string  `json:"size"`
		Color         string  `json:"color"`
		Quantity      int     `json:"quantity"`
		ImageURL      string  `json:"imageUrl"`
		ProductLink   string  `json:"productLink"`
		Category      string  `json:"category"`
	} `json:"items"`
}

func (e *OpenAIExtractor) ExtractItems(ctx context.Context, content, retailer string) ([]domain.ExtractedItem, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	userPrompt := fmt.Sprintf("Retailer: %s\n\nEmail content:\n%s", retailer, content)

	raw, err := e.breaker.Execute(func() (interface{}, error) {
		resp, err := e.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       e.model,
			MaxTokens:   e.maxTokens,
			Temperature: e.temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: userPrompt},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	answer := stripFences(raw.(string))
	if answer == "" {
		return nil, nil
	}

	var payload extractedPayload
	if err := json.Unmarshal([]byte(answer), &payload); err != nil {
		// Malformed model output counts as an empty result; the caller
		// treats the AI tier as best effort.
		logger.Warn("[OpenAIExtractor] Unparseable model response: %v", err)
		return nil, nil
	}

	items := make([]domain.ExtractedItem, 0, len(payload.Items))
	for _, it := range payload.Items {
		if strings.TrimSpace(it.Name) == "" {
			continue
		}
		quantity := it.Quantity
		if quantity < 1 {
			quantity = 1
		}
		items = append(items, domain.ExtractedItem{
			Brand:         it.Brand,
			Name:          it.Name,
			Price:         it.Price,
			OriginalPrice: it.OriginalPrice,
			Discount:      it.Discount,
			Size:          it.Size,
			Color:         it.Color,
			Quantity:      quantity,
			ImageURL:      it.ImageURL,
			ProductLink:   it.ProductLink,
			Category:      it.Category,
			Retailer:      retailer,
		})
	}
	return items, nil
}

// stripFences removes markdown code fences some models wrap around JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

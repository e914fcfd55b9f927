// Package recipe suggests recipes that use up soon-to-expire inventory.
package recipe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/pantrysense/pantry-cli/internal/model"
	"github.com/pantrysense/pantry-cli/pkg/anthropic"
)

// Recipe is one suggested dish.
type Recipe struct {
	Name        string   `json:"name"`
	Ingredients []string `json:"ingredients"`
	Uses        []string `json:"uses"`
	Steps       []string `json:"steps"`
	TimeMinutes int      `json:"time_minutes"`
}

const systemPrompt = `You are a practical home-cooking assistant. You suggest
simple recipes that prioritize ingredients about to expire. Respond with a
JSON array of recipe objects, each with keys: name, ingredients (list),
uses (the subset of the provided expiring items the recipe consumes),
steps (list), time_minutes (int). No prose outside the JSON.`

// Generator produces recipe suggestions from expiring items.
type Generator struct {
	client anthropic.Client
	model  string
}

func NewGenerator(client anthropic.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Suggest asks for up to max recipes using the given items. Items should
// already be filtered to the expiring subset by the caller.
func (g *Generator) Suggest(ctx context.Context, items []model.FoodItem, max int) ([]Recipe, error) {
	if len(items) == 0 {
		return nil, nil
	}
	if max <= 0 {
		max = 3
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Suggest up to %d recipes using these expiring items:\n", max)
	for _, item := range items {
		fmt.Fprintf(&sb, "- %s (%s, qty %d, expires %s)\n",
			item.Name, item.Category, item.Quantity, item.ExpiryDate.Format("2006-01-02"))
	}

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.model,
		MaxTokens: 2048,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "recipe: suggest")
	}
	resp.Usage.LogUsage(g.model, "recipe.suggest")

	recipes, err := parseRecipes(resp.Text())
	if err != nil {
		return nil, err
	}
	if len(recipes) > max {
		recipes = recipes[:max]
	}

	zap.L().Info("recipes suggested",
		zap.Int("items", len(items)),
		zap.Int("recipes", len(recipes)),
	)
	return recipes, nil
}

// parseRecipes decodes the model output, tolerating a ```json fence
// around the array.
func parseRecipes(text string) ([]Recipe, error) {
	text = strings.TrimSpace(text)
	if fenced, ok := strings.CutPrefix(text, "```json"); ok {
		text = fenced
	} else if fenced, ok := strings.CutPrefix(text, "```"); ok {
		text = fenced
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	// Fall back to the outermost array if the model added prose anyway.
	if !strings.HasPrefix(strings.TrimSpace(text), "[") {
		start := strings.Index(text, "[")
		end := strings.LastIndex(text, "]")
		if start < 0 || end <= start {
			return nil, eris.New("recipe: response contains no JSON array")
		}
		text = text[start : end+1]
	}

	var recipes []Recipe
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &recipes); err != nil {
		return nil, eris.Wrap(err, "recipe: decode response")
	}
	return recipes, nil
}

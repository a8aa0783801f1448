package gemini

import (
	"context"
	"fmt"

	language "cloud.google.com/go/language/apiv1"
	languagepb "cloud.google.com/go/language/apiv1/languagepb"

	"github.com/datar-psa/rageval/api"
)

// ModerationProvider implements api.ModerationProvider using the Google Cloud Natural Language API
type ModerationProvider struct {
	client *language.Client
}

// NewModerationProvider creates a provider from a preconfigured *language.Client (auth handled by caller)
func NewModerationProvider(client *language.Client) *ModerationProvider {
	return &ModerationProvider{client: client}
}

// Moderate analyzes the answer text for safety categories
func (p *ModerationProvider) Moderate(ctx context.Context, content string) (*api.ModerationResult, error) {
	if p.client == nil {
		return nil, fmt.Errorf("language client is required")
	}

	resp, err := p.client.ModerateText(ctx, &languagepb.ModerateTextRequest{
		Document: &languagepb.Document{
			Type:   languagepb.Document_PLAIN_TEXT,
			Source: &languagepb.Document_Content{Content: content},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("moderate text failed: %w", err)
	}

	categories := make([]api.ModerationCategory, 0, len(resp.GetModerationCategories()))
	for _, c := range resp.GetModerationCategories() {
		categories = append(categories, api.ModerationCategory{
			Name:       categoryName(c.GetName()),
			Confidence: float64(c.GetConfidence()),
		})
	}

	return &api.ModerationResult{Categories: categories}, nil
}

// googleCategories maps Natural Language API names that differ from api.ModerationCategories
var googleCategories = map[string]string{
	"Death, Harm & Tragedy": "DeathHarmTragedy",
	"Firearms & Weapons":    "FirearmsWeapons",
	"Public Safety":         "PublicSafety",
	"Religion & Belief":     "ReligionBelief",
	"Illicit Drugs":         "IllicitDrugs",
	"War & Conflict":        "WarConflict",
}

// categoryName returns the developer-friendly name; unknown names pass through
func categoryName(googleCategory string) string {
	if name, ok := googleCategories[googleCategory]; ok {
		return name
	}
	return googleCategory
}

var _ api.ModerationProvider = (*ModerationProvider)(nil)

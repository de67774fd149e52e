package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"google.golang.org/genai"
)

// QualityResult is returned alongside the generated image rather than being
// stuck onto it; callers decide whether to persist it.
type QualityResult struct {
	StyleScore float64 `json:"style_score"`
	Commentary string  `json:"commentary"`
}

type StyleScorerProvider interface {
	ScoreAvatar(ctx context.Context, avatarImage []byte, superhero string) (*QualityResult, error)
}

type GoogleStyleScorer struct{}

const scorerModel = "gemini-2.5-flash"

const scorerInstruction = `You judge event-kiosk superhero avatars. Given the image and the requested hero style, respond with JSON only: {"style_score": <float 0-10 for how well the image matches a cartoon %s look>, "commentary": "<one playful sentence for the participant>"}`

func (GoogleStyleScorer) ScoreAvatar(ctx context.Context, avatarImage []byte, superhero string) (*QualityResult, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GOOGLE_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %v", err)
	}

	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: "image/png", Data: avatarImage}},
		{Text: fmt.Sprintf(scorerInstruction, superhero)},
	}

	result, err := client.Models.GenerateContent(ctx, scorerModel, []*genai.Content{{Parts: parts}}, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		fmt.Println("Error in GenerateContent:", err)
		return nil, err
	}

	text := cleanAIResponseText(result.Text())
	var quality QualityResult
	if err := json.Unmarshal([]byte(text), &quality); err != nil {
		return nil, fmt.Errorf("scorer returned unparseable response %q: %v", text, err)
	}
	return &quality, nil
}

func cleanAIResponseText(text string) string {
	cleanContent := strings.ReplaceAll(text, "```json", "")
	cleanContent = strings.TrimSuffix(strings.TrimSpace(cleanContent), "```")
	return strings.TrimSpace(cleanContent)
}

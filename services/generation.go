package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const generationTimeout = 60 * time.Second

// GenerationResult is the single normalized outcome of a generation call.
// The provider responds with several payload shapes (bare URL string, an
// object carrying a URL, or a list of those); they are all folded into this
// struct here, at the boundary, so nothing downstream has to care.
type GenerationResult struct {
	ImageURL     string
	ErrorMessage string
}

func (r GenerationResult) Success() bool {
	return r.ErrorMessage == "" && r.ImageURL != ""
}

type ImageGeneratorProvider interface {
	GenerateAvatar(ctx context.Context, originalImage []byte, prompt string) (GenerationResult, error)
}

// FalImageGenerator calls the Fal AI image-to-image endpoint.
type FalImageGenerator struct {
	APIKey    string
	ModelName string
}

func NewFalImageGenerator() *FalImageGenerator {
	return &FalImageGenerator{
		APIKey:    GetEnv("FAL_KEY", ""),
		ModelName: GetEnv("FAL_MODEL", "fal-ai/flux-pro/kontext"),
	}
}

type falImageOut struct {
	URL string `json:"url"`
}

type falResponse struct {
	Images []falImageOut   `json:"images"`
	Image  *falImageOut    `json:"image"`
	Output json.RawMessage `json:"output"`
	Detail json.RawMessage `json:"detail"`
}

func (g *FalImageGenerator) GenerateAvatar(ctx context.Context, originalImage []byte, prompt string) (GenerationResult, error) {
	if g.APIKey == "" {
		return GenerationResult{}, fmt.Errorf("FAL_KEY is required for the Fal AI service")
	}

	// Fal accepts base64 data URLs in place of hosted image URLs
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(originalImage)
	payload, err := json.Marshal(map[string]interface{}{
		"prompt":    prompt,
		"image_url": dataURL,
	})
	if err != nil {
		return GenerationResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST",
		fmt.Sprintf("https://fal.run/%s", g.ModelName), bytes.NewReader(payload))
	if err != nil {
		return GenerationResult{}, err
	}
	req.Header.Set("Authorization", "Key "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: generationTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("generation request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GenerationResult{}, fmt.Errorf("failed to read generation response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GenerationResult{
			ErrorMessage: fmt.Sprintf("generation API returned status %d: %s", resp.StatusCode, string(body)),
		}, nil
	}

	return normalizeFalOutput(body), nil
}

// normalizeFalOutput accepts every response shape the provider is known to
// emit and reduces it to one GenerationResult.
func normalizeFalOutput(body []byte) GenerationResult {
	var parsed falResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GenerationResult{ErrorMessage: fmt.Sprintf("unparseable generation response: %v", err)}
	}

	if len(parsed.Images) > 0 && parsed.Images[0].URL != "" {
		return GenerationResult{ImageURL: parsed.Images[0].URL}
	}
	if parsed.Image != nil && parsed.Image.URL != "" {
		return GenerationResult{ImageURL: parsed.Image.URL}
	}
	if len(parsed.Output) > 0 {
		// output may be a plain URL string, a URL-bearing object, or a list
		var asString string
		if json.Unmarshal(parsed.Output, &asString) == nil && asString != "" {
			return GenerationResult{ImageURL: asString}
		}
		var asObject falImageOut
		if json.Unmarshal(parsed.Output, &asObject) == nil && asObject.URL != "" {
			return GenerationResult{ImageURL: asObject.URL}
		}
		var asList []falImageOut
		if json.Unmarshal(parsed.Output, &asList) == nil && len(asList) > 0 && asList[0].URL != "" {
			return GenerationResult{ImageURL: asList[0].URL}
		}
	}

	if len(parsed.Detail) > 0 {
		return GenerationResult{ErrorMessage: fmt.Sprintf("generation failed: %s", string(parsed.Detail))}
	}
	return GenerationResult{ErrorMessage: "generation response contained no image"}
}

package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const geminiPrompt = `You are inspecting a photo of a single potted plant.
Decide whether the plant looks healthy or is wilting.
Answer with JSON only, in the form {"label": "healthy" | "wilting", "confidence": <0..1>},
where confidence is your probability for the label you chose.`

// Gemini classifies images with a Gemini vision model.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key cannot be empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) generativeModel() *genai.GenerativeModel {
	m := g.client.GenerativeModel(g.model)
	m.SetTemperature(0)
	m.SetCandidateCount(1)
	m.ResponseMIMEType = "application/json"
	return m
}

func (g *Gemini) Classify(ctx context.Context, image []byte) (string, float64, error) {
	format := "jpeg"
	if http.DetectContentType(image) == "image/png" {
		format = "png"
	}

	resp, err := g.generativeModel().GenerateContent(ctx, genai.ImageData(format, image), genai.Text(geminiPrompt))
	if err != nil {
		return "", 0, fmt.Errorf("gemini request failed: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", 0, fmt.Errorf("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return parseGeminiAnswer(text.String())
}

func (g *Gemini) Close() error {
	return g.client.Close()
}

// parseGeminiAnswer extracts the JSON object from the model answer,
// tolerating markdown code fences.
func parseGeminiAnswer(answer string) (string, float64, error) {
	answer = strings.TrimSpace(answer)
	start := strings.Index(answer, "{")
	end := strings.LastIndex(answer, "}")
	if start < 0 || end < start {
		return "", 0, fmt.Errorf("gemini answer is not JSON: %q", answer)
	}

	var p prediction
	if err := json.Unmarshal([]byte(answer[start:end+1]), &p); err != nil {
		return "", 0, fmt.Errorf("error decoding gemini answer: %w", err)
	}
	if p.Label == "" || p.Confidence == nil {
		return "", 0, fmt.Errorf("gemini answer is missing label or confidence")
	}
	return p.Label, *p.Confidence, nil
}

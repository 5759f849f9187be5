package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"

	"github.com/Lllllllleong/pdfformfiller/internal/oracle"
)

// FormAssistantSystemPrompt frames every request sent to the model.
const FormAssistantSystemPrompt = "You are helping a user fill out a PDF form through a short conversation. Reply with plain text only: no markdown, no preamble, no surrounding quotes."

// VertexClient is an oracle.Oracle backed by a Gemini model on Vertex AI.
type VertexClient struct {
	baseClient *genai.Client
	modelName  string
}

// NewVertexClient creates a new client for the given project, region and model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	return &VertexClient{
		baseClient: baseClient,
		modelName:  modelName,
	}, nil
}

// Generate sends a single prompt with the caller's sampling parameters.
// The model handle is built per call because temperature and output cap
// differ between question composition and answer cleanup.
func (c *VertexClient) Generate(ctx context.Context, prompt string, params oracle.Params) (string, error) {
	model := c.baseClient.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(FormAssistantSystemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature:     genai.Ptr(params.Temperature),
		MaxOutputTokens: genai.Ptr(params.MaxTokens),
		CandidateCount:  genai.Ptr[int32](1),
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := extractText(resp)
	if text == "" {
		return "", oracle.ErrEmptyResponse
	}
	return text, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return oracle.CleanText(b.String())
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

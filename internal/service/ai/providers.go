package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Provider generates one JSON-mode completion for a system prompt plus
// instruction pair.
type Provider interface {
	Name() string
	Generate(ctx context.Context, system, instruction string) (ProviderResult, error)
}

type ProviderResult struct {
	Text  string
	Model string
}

// GeminiProvider wraps the Gemini client in JSON-response mode.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewGeminiProvider(client *genai.Client, defaultModel string, logger *zap.Logger) *GeminiProvider {
	return &GeminiProvider{
		client:       client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (g *GeminiProvider) Name() string {
	return "Gemini"
}

func (g *GeminiProvider) Generate(ctx context.Context, system, instruction string) (ProviderResult, error) {
	if g.client == nil {
		return ProviderResult{}, fmt.Errorf("gemini client not initialized")
	}

	temperature := float32(0.2)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	g.logger.Debug("Generating with Gemini",
		zap.String("model", g.defaultModel),
		zap.Int("instruction_length", len(instruction)),
	)

	resp, err := g.client.Models.GenerateContent(ctx, g.defaultModel, []*genai.Content{
		{
			Parts: []*genai.Part{
				{Text: instruction},
			},
		},
	}, config)
	if err != nil {
		g.logger.Error("Gemini generation failed", zap.Error(err))
		return ProviderResult{}, err
	}

	text := extractGeminiText(resp)
	if text == "" {
		return ProviderResult{}, fmt.Errorf("empty response from Gemini")
	}

	return ProviderResult{Text: text, Model: g.defaultModel}, nil
}

// OpenAIProvider wraps the OpenAI chat completion client as the fallback
// engine.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
	logger       *zap.Logger
}

func NewOpenAIProvider(apiKey, defaultModel string, logger *zap.Logger) *OpenAIProvider {
	if apiKey == "" {
		return nil
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIProvider{
		client:       &client,
		defaultModel: defaultModel,
		logger:       logger,
	}
}

func (o *OpenAIProvider) Name() string {
	return "OpenAI"
}

func (o *OpenAIProvider) Generate(ctx context.Context, system, instruction string) (ProviderResult, error) {
	if o.client == nil {
		return ProviderResult{}, fmt.Errorf("openai client not initialized")
	}

	o.logger.Info("Fallback: generating with OpenAI", zap.String("model", o.defaultModel))

	var model openai.ChatModel
	switch o.defaultModel {
	case "gpt-4.1":
		model = openai.ChatModelGPT4_1
	case "gpt-4.1-mini":
		model = openai.ChatModelGPT4_1Mini
	case "gpt-4.1-nano":
		model = openai.ChatModelGPT4_1Nano
	case "gpt-4o":
		model = openai.ChatModelGPT4o
	case "gpt-4o-mini":
		model = openai.ChatModelGPT4oMini
	default:
		model = openai.ChatModelGPT4_1Mini
	}

	systemMessage := "You must respond with valid JSON only. Do not include any text outside the JSON object."
	if system != "" {
		systemMessage = system + "\n\n" + systemMessage
	}

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemMessage),
			openai.UserMessage(instruction),
		},
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		o.logger.Error("OpenAI generation failed", zap.Error(err))
		return ProviderResult{}, err
	}

	if len(resp.Choices) == 0 {
		return ProviderResult{}, fmt.Errorf("no choices in OpenAI response")
	}

	return ProviderResult{Text: resp.Choices[0].Message.Content, Model: o.defaultModel}, nil
}

func extractGeminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return ""
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	return strings.Join(texts, "")
}

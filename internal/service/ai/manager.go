package ai

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/SamoM225/the-bible-translations/pkg/errors"
)

// EngineManager fronts the primary Gemini engine with an optional OpenAI
// fallback. It classifies provider failures so the pipeline can tell a
// rate-limit from a transient fault.
type EngineManager struct {
	gemini         *GeminiProvider
	openai         *OpenAIProvider
	primary        Provider
	fallback       Provider
	logger         *zap.Logger
	enableFallback bool
}

type EngineConfig struct {
	GeminiAPIKey       string
	DefaultGeminiModel string
	OpenAIAPIKey       string
	DefaultOpenAIModel string
	EnableFallback     bool
}

func NewEngineManager(ctx context.Context, cfg EngineConfig, logger *zap.Logger) (*EngineManager, error) {
	geminiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	defaultGemini := cfg.DefaultGeminiModel
	if defaultGemini == "" {
		defaultGemini = "gemini-2.5-flash"
	}
	defaultOpenAI := cfg.DefaultOpenAIModel
	if defaultOpenAI == "" {
		defaultOpenAI = "gpt-4.1-mini"
	}

	geminiProvider := NewGeminiProvider(geminiClient, defaultGemini, logger)
	openaiProvider := NewOpenAIProvider(cfg.OpenAIAPIKey, defaultOpenAI, logger)
	if openaiProvider != nil {
		logger.Info("OpenAI fallback enabled", zap.String("model", defaultOpenAI))
	} else {
		logger.Info("OpenAI fallback disabled (no API key)")
	}

	em := &EngineManager{
		gemini:  geminiProvider,
		openai:  openaiProvider,
		primary: geminiProvider,
		logger:  logger,
	}
	em.enableFallback = cfg.EnableFallback && openaiProvider != nil
	if em.enableFallback {
		em.fallback = openaiProvider
	}

	return em, nil
}

// Translate issues one JSON-mode generation and decodes it. Transport-level
// failure returns a RateLimitError or EngineError; a payload that is not the
// expected shape returns an empty Output with no error.
func (em *EngineManager) Translate(ctx context.Context, systemPrompt, instruction string) (Output, error) {
	result, err := em.primary.Generate(ctx, systemPrompt, instruction)
	if err == nil {
		return em.decode(em.primary.Name(), result), nil
	}

	if isRateLimitSignal(err) {
		return Output{}, errors.NewRateLimitError("engine throttled the request", err)
	}

	if em.enableFallback && em.fallback != nil && ctx.Err() == nil {
		fallbackResult, fallbackErr := em.fallback.Generate(ctx, systemPrompt, instruction)
		if fallbackErr == nil {
			return em.decode(em.fallback.Name(), fallbackResult), nil
		}
		if isRateLimitSignal(fallbackErr) {
			return Output{}, errors.NewRateLimitError("fallback engine throttled the request", fallbackErr)
		}
		return Output{}, errors.NewEngineError("translation request failed", em.fallback.Name(), fallbackErr)
	}

	return Output{}, errors.NewEngineError("translation request failed", em.primary.Name(), err)
}

func (em *EngineManager) decode(provider string, result ProviderResult) Output {
	out := DecodeOutput(result.Text)
	if out.Empty() {
		em.logger.Warn("Engine payload malformed or empty, treating as zero translations",
			zap.String("provider", provider),
			zap.String("model", result.Model),
			zap.String("response_preview", previewForLog(result.Text)),
		)
	}
	return out
}

const logPreviewBytes = 200

// previewForLog truncates to at most logPreviewBytes without cutting a rune
// in half.
func previewForLog(text string) string {
	if len(text) <= logPreviewBytes {
		return text
	}
	cut := logPreviewBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

var (
	geminiCodeRegex = regexp.MustCompile(`"code":(\d{3})`)
	openaiCodeRegex = regexp.MustCompile(`^(\d{3})\s`)
)

func isRateLimitSignal(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	if strings.Contains(msg, "429") || strings.Contains(msg, "Rate limit") ||
		strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return true
	}

	if matches := geminiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code == 429
		}
	}

	if matches := openaiCodeRegex.FindStringSubmatch(msg); len(matches) > 1 {
		if code, convErr := strconv.Atoi(matches[1]); convErr == nil {
			return code == 429
		}
	}

	return false
}

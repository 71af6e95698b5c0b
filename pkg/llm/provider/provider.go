// Package provider builds the configured llm.Gateway.
package provider

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/nestlog/pkg/llm"
	"github.com/papercomputeco/nestlog/pkg/llm/provider/anthropic"
	"github.com/papercomputeco/nestlog/pkg/llm/provider/ollama"
	"github.com/papercomputeco/nestlog/pkg/llm/provider/openai"
)

const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Ollama    = "ollama"
)

// Config holds configuration for creating a gateway.
type Config struct {
	Provider string        // "openai", "anthropic", or "ollama"
	Model    string        // e.g. "gpt-4o-mini", "llama3.2"
	APIKey   string        // explicit API key (highest priority)
	BaseURL  string        // override base URL
	Timeout  time.Duration // per call
	Logger   *slog.Logger
}

// Providers lists the supported provider names.
func Providers() []string {
	return []string{OpenAI, Anthropic, Ollama}
}

// New creates a gateway for the configured provider.
// Resolution order for the API key:
//  1. Explicit APIKey in config
//  2. Environment variables (OPENAI_API_KEY / ANTHROPIC_API_KEY)
//  3. Fall back to Ollama with its default endpoint
func New(cfg Config) (llm.Gateway, error) {
	name := strings.ToLower(cfg.Provider)
	if name == "" {
		name = Ollama
	}

	switch name {
	case OpenAI, Anthropic, Ollama:
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = apiKeyFromEnv(name)
	}

	if apiKey == "" && name != Ollama {
		if cfg.Logger != nil {
			cfg.Logger.Warn("no API key found, falling back to ollama", "provider", name)
		}
		return ollama.New("", "", cfg.Timeout), nil
	}

	switch name {
	case OpenAI:
		return openai.New(apiKey, cfg.Model, cfg.BaseURL, cfg.Timeout), nil
	case Anthropic:
		return anthropic.New(apiKey, cfg.Model, cfg.BaseURL, cfg.Timeout), nil
	default:
		return ollama.New(cfg.Model, cfg.BaseURL, cfg.Timeout), nil
	}
}

func apiKeyFromEnv(name string) string {
	switch name {
	case OpenAI:
		return os.Getenv("OPENAI_API_KEY")
	case Anthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	default:
		return ""
	}
}

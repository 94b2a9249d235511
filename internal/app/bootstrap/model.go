package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/careloop/clinic-concierge/internal/config"
	"github.com/careloop/clinic-concierge/internal/llm"
	"github.com/careloop/clinic-concierge/pkg/logging"
)

// BuildModelClient assembles the model stack: Gemini with tool calling as
// primary, Bedrock as the text-only degraded fallback. The returned closer
// releases the Gemini connection.
func BuildModelClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) (llm.Client, func() error, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var primary llm.Client
	closer := func() error { return nil }

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap: gemini client: %w", err)
		}
		primary = gemini
		closer = gemini.Close
	}

	var secondary llm.Client
	if strings.TrimSpace(cfg.BedrockModelID) != "" {
		secondary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockModelID)
	}

	switch {
	case primary == nil && secondary == nil:
		return nil, nil, fmt.Errorf("bootstrap: no model configured, set GEMINI_API_KEY or BEDROCK_MODEL_ID")
	case primary == nil:
		logger.Warn("gemini not configured, running on bedrock only")
		return secondary, closer, nil
	case secondary == nil:
		return primary, closer, nil
	default:
		return llm.NewFallbackClient(primary, secondary, logger), closer, nil
	}
}

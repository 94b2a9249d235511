package llm

import (
	"context"

	"github.com/careloop/clinic-concierge/pkg/logging"
)

// FallbackClient wraps a primary provider with a fallback. If the primary
// fails, the request is retried against the fallback; when the fallback does
// not support tools, tools are stripped and the response is marked Degraded
// so the orchestrator knows no function call can follow.
type FallbackClient struct {
	primary  Client
	fallback Client
	logger   *logging.Logger
}

// NewFallbackClient creates a fallback-enabled client. fallback may be nil.
func NewFallbackClient(primary, fallback Client, logger *logging.Logger) *FallbackClient {
	if primary == nil {
		panic("llm: primary client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackClient{primary: primary, fallback: fallback, logger: logger}
}

func (c *FallbackClient) SupportsTools() bool { return c.primary.SupportsTools() }

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.WarnContext(ctx, "primary model provider failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return Response{}, err
	}

	fallbackReq := req
	degraded := false
	if len(req.Tools) > 0 && !c.fallback.SupportsTools() {
		fallbackReq.Tools = nil
		degraded = true
	}

	fallbackResp, fallbackErr := c.fallback.Complete(ctx, fallbackReq)
	if fallbackErr != nil {
		c.logger.ErrorContext(ctx, "fallback model provider also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		return Response{}, fallbackErr
	}

	c.logger.InfoContext(ctx, "fallback model provider succeeded after primary failure")
	fallbackResp.Degraded = fallbackResp.Degraded || degraded
	return fallbackResp, nil
}

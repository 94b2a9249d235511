package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedClient struct {
	resp     Response
	err      error
	tools    bool
	requests []Request
}

func (c *scriptedClient) Complete(_ context.Context, req Request) (Response, error) {
	c.requests = append(c.requests, req)
	return c.resp, c.err
}

func (c *scriptedClient) SupportsTools() bool { return c.tools }

func TestFallbackClientPrimarySucceeds(t *testing.T) {
	primary := &scriptedClient{resp: Response{Text: "hello"}, tools: true}
	fallback := &scriptedClient{resp: Response{Text: "backup"}}
	c := NewFallbackClient(primary, fallback, nil)

	resp, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text)
	assert.Empty(t, fallback.requests)
}

func TestFallbackClientStripsToolsForTextOnlyFallback(t *testing.T) {
	primary := &scriptedClient{err: errors.New("quota exceeded"), tools: true}
	fallback := &scriptedClient{resp: Response{Text: "backup"}, tools: false}
	c := NewFallbackClient(primary, fallback, nil)

	req := Request{
		Messages: []Message{{Role: RoleUser, Content: "book me in"}},
		Tools:    []Tool{{Name: "check_availability"}},
	}
	resp, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "backup", resp.Text)
	assert.True(t, resp.Degraded)
	require.Len(t, fallback.requests, 1)
	assert.Empty(t, fallback.requests[0].Tools)
}

func TestFallbackClientKeepsToolsForCapableFallback(t *testing.T) {
	primary := &scriptedClient{err: errors.New("down"), tools: true}
	fallback := &scriptedClient{resp: Response{Text: "backup"}, tools: true}
	c := NewFallbackClient(primary, fallback, nil)

	req := Request{Tools: []Tool{{Name: "check_availability"}}, Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	resp, err := c.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Degraded)
	require.Len(t, fallback.requests, 1)
	assert.Len(t, fallback.requests[0].Tools, 1)
}

func TestFallbackClientBothFail(t *testing.T) {
	primary := &scriptedClient{err: errors.New("primary down"), tools: true}
	fallback := &scriptedClient{err: errors.New("fallback down")}
	c := NewFallbackClient(primary, fallback, nil)

	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fallback down")
}

func TestFallbackClientNoFallbackConfigured(t *testing.T) {
	primary := &scriptedClient{err: errors.New("primary down"), tools: true}
	c := NewFallbackClient(primary, nil, nil)

	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary down")
}

package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entity-harvester/backend/internal/llm"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]any{
			"prompt_tokens":     120,
			"completion_tokens": 30,
			"total_tokens":      150,
		},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{
		APIKey:        "test-key",
		BaseURL:       srv.URL,
		Model:         "gpt-4o-mini",
		MaxInputChars: 100,
	}, nil)
	return c, srv
}

func TestExtractEntitiesSuccess(t *testing.T) {
	var gotReq map[string]any
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		content := "```json\n{\"entities\":[{\"full_name\":\"Jane Doe\",\"email\":\" jane@x.com \"}]}\n```"
		_ = json.NewEncoder(w).Encode(completionBody(content))
	})

	res, err := c.ExtractEntities(context.Background(), "Jane Doe <jane@x.com>")
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Jane Doe", *res.Entities[0].FullName)
	assert.Equal(t, "jane@x.com", *res.Entities[0].Email)
	assert.Nil(t, res.Entities[0].PhoneNumber)

	assert.Equal(t, "gpt-4o-mini", res.Audit.Model)
	assert.Equal(t, len("Jane Doe <jane@x.com>"), res.Audit.InputChars)
	assert.Contains(t, res.Audit.RawResponse, "Jane Doe")
	assert.Equal(t, 150, res.Audit.TotalTokens)
	assert.Equal(t, "stop", res.Audit.FinishReason)

	msgs := gotReq["messages"].([]any)
	require.Len(t, msgs, 2)
	sys := msgs[0].(map[string]any)
	assert.Equal(t, "system", sys["role"])
	assert.Contains(t, sys["content"], "null")
}

func TestExtractEntitiesTruncatesInput(t *testing.T) {
	var userContent string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		msgs := req["messages"].([]any)
		userContent = msgs[1].(map[string]any)["content"].(string)
		_ = json.NewEncoder(w).Encode(completionBody(`{"entities":[]}`))
	})

	_, err := c.ExtractEntities(context.Background(), strings.Repeat("a", 500))
	require.NoError(t, err)
	assert.Contains(t, userContent, llm.TruncationMarker)
	assert.NotContains(t, userContent, strings.Repeat("a", 101), "suffix beyond the budget is discarded")
}

func TestExtractEntitiesProviderError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	})

	_, err := c.ExtractEntities(context.Background(), "text")
	var cerr *llm.CallError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, http.StatusTooManyRequests, cerr.StatusCode)
	assert.Contains(t, cerr.Message, "rate limited")
}

func TestExtractEntitiesNoChoices(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})

	_, err := c.ExtractEntities(context.Background(), "text")
	var cerr *llm.CallError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Message, "no choices")
}

func TestExtractEntitiesMalformedContent(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody("sorry, I cannot help with that"))
	})

	_, err := c.ExtractEntities(context.Background(), "text")
	var rerr *llm.ResponseError
	require.ErrorAs(t, err, &rerr, "contract violations must surface, not collapse to an empty list")
}

func TestExtractEntitiesEmptyEntityList(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody(`{"entities":[]}`))
	})

	res, err := c.ExtractEntities(context.Background(), "no people here")
	require.NoError(t, err)
	assert.Len(t, res.Entities, 0)
}

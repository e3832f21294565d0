package openai

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/entity-harvester/backend/internal/common"
	"github.com/entity-harvester/backend/internal/entity"
	"github.com/entity-harvester/backend/internal/llm"
)

// ExtractEntities implements llm.EntityExtractor using text-only
// chat/completions. One request per document, no retries: transport failures
// surface as *llm.CallError, contract violations as *llm.ResponseError.
func (c *Client) ExtractEntities(ctx context.Context, documentText string) (llm.ExtractionResult, error) {
	rid := common.RequestIDFromContext(ctx)
	ctx = common.WithRequestID(ctx, rid)
	start := time.Now()

	input, truncated := llm.TruncateInput(documentText, c.cfg.MaxInputChars)
	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"temp", c.cfg.Temperature,
		"text_len", len(documentText),
		"input_len", len(input),
		"truncated", truncated,
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.SystemPrompt},
			{"role": "user", "content": llm.BuildUserPrompt(input)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	raw, status, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.http_error",
			"req_id", rid, "status", status, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		msg := err.Error()
		if len(raw) > 0 {
			msg = strings.TrimSpace(string(raw))
		}
		return llm.ExtractionResult{}, &llm.CallError{StatusCode: status, Message: msg}
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Error("llm.extract.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ExtractionResult{}, &llm.CallError{StatusCode: status, Message: "decode completion response: " + err.Error()}
	}
	if len(cc.Choices) == 0 {
		c.logger.Error("llm.extract.no_choices",
			"req_id", rid, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ExtractionResult{}, &llm.CallError{StatusCode: status, Message: "no choices in completion response"}
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	entities, err := llm.ParseEntities(content, c.logger)
	if err != nil {
		c.logger.Error("llm.extract.malformed_response",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ExtractionResult{}, err
	}
	if err := llm.ValidateNormalized(entities); err != nil {
		c.logger.Error("llm.extract.schema_validation_failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.ExtractionResult{}, &llm.ResponseError{Reason: "normalized output violates schema: " + err.Error()}
	}

	result := llm.ExtractionResult{
		Entities: entities,
		Audit: entity.ExtractionAudit{
			Model:            c.cfg.Model,
			InputChars:       len(input),
			RawResponse:      content,
			PromptTokens:     cc.Usage.PromptTokens,
			CompletionTokens: cc.Usage.CompletionTokens,
			TotalTokens:      cc.Usage.TotalTokens,
			FinishReason:     cc.Choices[0].FinishReason,
		},
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"entities", len(entities),
		"prompt_tokens", cc.Usage.PromptTokens,
		"completion_tokens", cc.Usage.CompletionTokens,
		"finish_reason", result.Audit.FinishReason,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}


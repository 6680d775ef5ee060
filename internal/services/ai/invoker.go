package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"

	"github.com/mailtasker/mailtasker/internal/database"
	"github.com/mailtasker/mailtasker/internal/logger"
	"github.com/mailtasker/mailtasker/internal/models"
)

const requestTimeout = 30 * time.Second

// Invoker runs a single structured-output completion against the active
// prompt configuration and records tokens, cost and latency for every
// successful call.
type Invoker struct {
	client         openai.Client
	configRepo     database.PromptConfigRepositoryInterface
	invocationRepo database.InvocationRepositoryInterface
	logger         *zap.Logger
	debugMode      bool
}

// Result is the outcome of one model invocation. Costs are in nano-USD,
// derived from the per-token rates on the prompt configuration that served
// the call.
type Result struct {
	Content          string
	PromptTokens     int64
	CompletionTokens int64
	InputCostNano    int64
	OutputCostNano   int64
	TotalCostNano    int64
	Latency          time.Duration
	ConfigID         int64
}

func NewInvoker(apiKey, baseURL string, configRepo database.PromptConfigRepositoryInterface, invocationRepo database.InvocationRepositoryInterface, log *zap.Logger, debugMode bool) *Invoker {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: requestTimeout}),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Invoker{
		client:         openai.NewClient(opts...),
		configRepo:     configRepo,
		invocationRepo: invocationRepo,
		logger:         log,
		debugMode:      debugMode,
	}
}

// Run sends the user content to the model under the active prompt config
// and returns the raw completion content together with cost accounting.
// A *ModelInvocationError means nothing usable came back and nothing was
// charged; an *InvocationLogError means the completion is good but the
// audit row failed to persist.
func (v *Invoker) Run(ctx context.Context, userID uuid.UUID, emailID *int64, userContent string) (*Result, error) {
	cfg, err := v.configRepo.GetActive(ctx)
	if err != nil {
		return nil, &ModelInvocationError{Err: err}
	}

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(cfg.Prompt),
			openai.UserMessage(userContent),
		},
		ResponseFormat: taskListResponseFormat(),
	}
	if cfg.Temperature != nil {
		req.Temperature = openai.Float(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		req.TopP = openai.Float(*cfg.TopP)
	}
	if cfg.Seed != nil {
		req.Seed = openai.Int(*cfg.Seed)
	}

	if v.debugMode {
		v.logger.Debug("invoking_model",
			zap.String("model", cfg.Model),
			zap.Int64("config_id", cfg.ID),
			zap.String("user_content", logger.SanitizeDebugContent(userContent)),
		)
	}

	start := time.Now()
	resp, err := v.client.Chat.Completions.New(ctx, req)
	latency := time.Since(start)
	if err != nil {
		return nil, newModelError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ModelInvocationError{Err: errEmptyCompletion}
	}

	content := resp.Choices[0].Message.Content
	result := &Result{
		Content:          content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		InputCostNano:    resp.Usage.PromptTokens * cfg.InputCostNanoPerTok,
		OutputCostNano:   resp.Usage.CompletionTokens * cfg.OutputCostNanoPerTok,
		Latency:          latency,
		ConfigID:         cfg.ID,
	}
	result.TotalCostNano = result.InputCostNano + result.OutputCostNano

	if v.debugMode {
		v.logger.Debug("model_invocation_complete",
			zap.Int64("prompt_tokens", result.PromptTokens),
			zap.Int64("completion_tokens", result.CompletionTokens),
			zap.Int64("total_cost_nano_usd", result.TotalCostNano),
			zap.Duration("latency", latency),
			zap.String("content", logger.SanitizeDebugContent(content)),
		)
	}

	invocation := &models.AIInvocation{
		ConfigID:       cfg.ID,
		UserID:         userID,
		EmailID:        emailID,
		RequestTokens:  result.PromptTokens,
		ResponseTokens: result.CompletionTokens,
		InputCostNano:  result.InputCostNano,
		OutputCostNano: result.OutputCostNano,
		TotalCostNano:  result.TotalCostNano,
		LatencyMillis:  latency.Milliseconds(),
	}
	if err := v.invocationRepo.Create(ctx, invocation); err != nil {
		return result, &InvocationLogError{Err: err}
	}

	return result, nil
}

// taskListResponseFormat constrains the completion to the task_list schema.
// Strict mode is intentionally not requested: the schema uses keywords
// (maxLength, optional fields outside required) that the provider rejects
// under strict validation, and the sanitizer already guards the parsed
// output.
func taskListResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
			JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:   "task_list",
				Schema: TaskListSchema(),
			},
		},
	}
}

// ParseTaskList decodes completion content into the raw task entries the
// sanitizer expects. A completion that is not valid JSON, or is missing the
// tasks array, yields zero tasks rather than an error; schema violations
// are logged and otherwise ignored.
func (v *Invoker) ParseTaskList(content string) []any {
	if err := ValidateTaskList(content); err != nil {
		v.logger.Warn("model_output_schema_violation",
			zap.Error(err),
			zap.String("content", logger.SanitizeDebugContent(content)),
		)
	}
	var parsed struct {
		Tasks []any `json:"tasks"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		v.logger.Warn("model_output_unparseable",
			zap.Error(err),
			zap.String("content", logger.SanitizeDebugContent(content)),
		)
		return nil
	}
	return parsed.Tasks
}

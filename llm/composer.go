// Package llm turns prompt templates plus task text into completions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	"github.com/justmike1/devx/apperr"
	"github.com/justmike1/devx/prompts"
)

const (
	analysisTemperature = 0.3
	analysisMaxTokens   = 2000
	writingTemperature  = 0.7
)

// Options selects the completion backend.
type Options struct {
	APIKey string
	// Model is the Azure deployment name or the OpenAI model id.
	Model      string
	Endpoint   string
	APIVersion string
	// BaseURL, when set, targets a plain OpenAI-compatible API instead of Azure.
	BaseURL string
}

// NewModel builds an Azure OpenAI (or OpenAI-compatible) chat model.
func NewModel(opts Options) (llms.Model, error) {
	o := []openai.Option{
		openai.WithModel(opts.Model),
		openai.WithToken(opts.APIKey),
	}
	if opts.BaseURL != "" {
		o = append(o, openai.WithBaseURL(opts.BaseURL))
	} else {
		o = append(o,
			openai.WithAPIType(openai.APITypeAzure),
			openai.WithBaseURL(opts.Endpoint),
			openai.WithAPIVersion(opts.APIVersion),
		)
	}
	m, err := openai.New(o...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return m, nil
}

// Composer issues one stateless completion per call: the template is the
// system message, the task text is the user message.
type Composer struct {
	model   llms.Model
	prompts *prompts.Store
}

func NewComposer(model llms.Model, store *prompts.Store) *Composer {
	return &Composer{model: model, prompts: store}
}

// AnalyzeCode answers instructions about a piece of code.
func (c *Composer) AnalyzeCode(ctx context.Context, code, instructions string) (string, error) {
	system, err := c.template(prompts.CodeAnalysis)
	if err != nil {
		return "", err
	}
	if instructions != "" {
		system += "\n\n" + instructions
	}
	return c.complete(ctx, prompts.CodeAnalysis, system, code,
		llms.WithTemperature(analysisTemperature),
		llms.WithMaxTokens(analysisMaxTokens),
	)
}

// RefineTicket drafts a refinement of a ticket description.
func (c *Composer) RefineTicket(ctx context.Context, description, technicalContext string) (string, error) {
	system, err := c.template(prompts.TicketPlanning)
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("Description: %s\nTechnical Context: %s", description, technicalContext)
	return c.complete(ctx, prompts.TicketPlanning, system, user, llms.WithTemperature(writingTemperature))
}

// ReviewPR writes review commentary for a diff bundle.
func (c *Composer) ReviewPR(ctx context.Context, diff, repoContext string) (string, error) {
	system, err := c.template(prompts.PRReview)
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("PR Diff:\n%s\n\nRepo Context:\n%s", diff, repoContext)
	return c.complete(ctx, prompts.PRReview, system, user, llms.WithTemperature(writingTemperature))
}

// ChatReply answers a chat message.
func (c *Composer) ChatReply(ctx context.Context, message, msgContext string) (string, error) {
	system, err := c.template(prompts.SlackResponses)
	if err != nil {
		return "", err
	}
	user := fmt.Sprintf("Message: %s\nContext: %s", message, msgContext)
	return c.complete(ctx, prompts.SlackResponses, system, user, llms.WithTemperature(writingTemperature))
}

func (c *Composer) template(key string) (string, error) {
	v, ok := c.prompts.Get(key)
	if !ok {
		return "", apperr.Configuration(apperr.ServiceLLM, "prompt template %q is not configured", key)
	}
	return v, nil
}

func (c *Composer) complete(ctx context.Context, key, system, user string, opts ...llms.CallOption) (string, error) {
	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, user),
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%s completion failed: %w", key, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New(key + " completion returned no choices")
	}

	log.Debug().
		Str("component", "llm").
		Str("template", key).
		Int("prompt_chars", len(user)).
		Dur("took", time.Since(start)).
		Msg("completion done")
	return resp.Choices[0].Content, nil
}

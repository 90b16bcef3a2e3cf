// Package saptiva talks to the model gateway and the Copilotos API: chat
// completions, document uploads and review jobs.
package saptiva

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"copilotos/internal/conversation"
	"copilotos/internal/models"
	"copilotos/internal/tools"
	"copilotos/internal/workspace"
)

// Agent loop limit
const MaxToolIterations = 15

const ChatSystemPrompt = `You are Copilotos, a helpful assistant. You answer questions, explain concepts and help with writing and research. Be clear, concise and accurate. Answer in the language the user writes in.`

const agentPrompt = `
You can inspect the user's workspace with read-only tools (ls, read, glob, grep). Read files before making claims about them.
Working directory: %s`

// ToolObserver is told about every workspace tool the model runs.
type ToolObserver func(name, summary string)

type ChatConfig struct {
	APIKey     string
	BaseURL    string
	MaxRetries int
	Inspector  *workspace.Inspector
	Logger     zerolog.Logger
}

// ChatClient is the message-send collaborator. It streams replies from an
// OpenAI-compatible endpoint.
type ChatClient struct {
	client    openai.Client
	inspector *workspace.Inspector
	log       zerolog.Logger

	OnTool ToolObserver
}

func NewChatClient(cfg ChatConfig) *ChatClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithHeader("X-Title", "Copilotos CLI"),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &ChatClient{
		client:    openai.NewClient(opts...),
		inspector: cfg.Inspector,
		log:       cfg.Logger.With().Str("component", "chat").Logger(),
	}
}

func (c *ChatClient) Send(ctx context.Context, req conversation.SendRequest, onDelta func(string)) (conversation.Completion, error) {
	start := time.Now()
	agent := c.inspector != nil && slices.Contains(req.Tools, tools.AgentMode)

	params := openai.ChatCompletionNewParams{
		Model:    req.Model,
		Messages: c.buildMessages(req, agent),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if agent {
		params.Tools = workspace.Definitions
	}

	var tokens int64
	for iteration := 1; ; iteration++ {
		acc, err := c.stream(ctx, params, onDelta)
		if err != nil {
			return conversation.Completion{}, err
		}
		tokens += acc.Usage.CompletionTokens
		if len(acc.Choices) == 0 {
			return conversation.Completion{}, errors.New("empty response from model")
		}

		msg := acc.Choices[0].Message
		if !agent || len(msg.ToolCalls) == 0 || iteration >= MaxToolIterations {
			content := msg.Content
			if agent && len(msg.ToolCalls) > 0 {
				content += fmt.Sprintf("\n\n*[Stopped after %d tool iterations]*", MaxToolIterations)
			}
			model := acc.Model
			if model == "" {
				model = req.Model
			}
			c.log.Debug().
				Str("model", model).
				Int64("tokens", tokens).
				Int("iterations", iteration).
				Dur("latency", time.Since(start)).
				Msg("completion finished")
			return conversation.Completion{
				Content: content,
				Model:   model,
				Tokens:  tokens,
				Latency: time.Since(start),
			}, nil
		}

		// Speculative text next to tool calls tends to anchor the model.
		msg.Content = ""
		params.Messages = append(params.Messages, msg.ToParam())
		for _, tc := range msg.ToolCalls {
			result, err := c.inspector.Execute(tc.Function.Name, tc.Function.Arguments)
			if err != nil {
				result = fmt.Sprintf("error: %v", err)
			}
			params.Messages = append(params.Messages, openai.ToolMessage(result, tc.ID))
			if c.OnTool != nil {
				c.OnTool(tc.Function.Name, workspace.Summary(tc.Function.Name, tc.Function.Arguments, result))
			}
		}
	}
}

func (c *ChatClient) stream(ctx context.Context, params openai.ChatCompletionNewParams, onDelta func(string)) (openai.ChatCompletionAccumulator, error) {
	acc := openai.ChatCompletionAccumulator{}
	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onDelta(chunk.Choices[0].Delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return acc, fmt.Errorf("chat completion: %w", err)
	}
	return acc, nil
}

func (c *ChatClient) buildMessages(req conversation.SendRequest, agent bool) []openai.ChatCompletionMessageParamUnion {
	system := ChatSystemPrompt
	if md := tools.DescribeMarkdown(req.Tools); md != "" {
		system += "\n\n" + md
	}
	if agent {
		system += fmt.Sprintf(agentPrompt, c.inspector.Root)
	}

	out := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(system)}
	for _, m := range req.History {
		switch m.Role {
		case models.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		}
	}
	out = append(out, openai.UserMessage(req.Text+BuildFileContext(req.Attachments)))
	return out
}

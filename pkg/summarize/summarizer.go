// Package summarize sends transcripts to an LLM for summarization. The
// backend is chosen by model name: gpt-* goes to OpenAI, claude-* to
// Anthropic, gemini* to Google, and everything else to a local Ollama
// server. Cloud backends require an API key from the credential source;
// Ollama needs none.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/GunnyMarc/verba/pkg/pipeline"
)

// Vendor identifiers used for credential lookup.
const (
	VendorOpenAI    = "openai"
	VendorAnthropic = "anthropic"
	VendorGoogle    = "google"
	VendorOllama    = "ollama"
)

// IsOpenAIModel reports whether the model routes to OpenAI.
func IsOpenAIModel(model string) bool {
	return strings.HasPrefix(model, "gpt-")
}

// IsAnthropicModel reports whether the model routes to Anthropic.
func IsAnthropicModel(model string) bool {
	return strings.HasPrefix(model, "claude-")
}

// IsGoogleModel reports whether the model routes to Google Gemini.
func IsGoogleModel(model string) bool {
	return strings.HasPrefix(model, "gemini")
}

// VendorFor returns the vendor a model name routes to.
func VendorFor(model string) string {
	switch {
	case IsOpenAIModel(model):
		return VendorOpenAI
	case IsAnthropicModel(model):
		return VendorAnthropic
	case IsGoogleModel(model):
		return VendorGoogle
	default:
		return VendorOllama
	}
}

// CredentialSource supplies API keys by vendor. An empty string means the
// key is not configured.
type CredentialSource interface {
	APIKey(vendor string) string
}

// EnvCredentials reads keys from the conventional environment variables.
type EnvCredentials struct {
	Getenv func(string) string
}

// vendorEnv maps credential vendors to their environment variables.
var vendorEnv = map[string]string{
	VendorOpenAI:    "OPENAI_API_KEY",
	VendorAnthropic: "ANTHROPIC_API_KEY",
	VendorGoogle:    "GOOGLE_API_KEY",
	VendorOllama:    "OLLAMA_API_KEY",
}

// APIKey implements CredentialSource.
func (e EnvCredentials) APIKey(vendor string) string {
	name, ok := vendorEnv[vendor]
	if !ok {
		return ""
	}
	return strings.TrimSpace(e.Getenv(name))
}

// ChainCredentials tries each source in order and returns the first
// non-empty key. Used to let stored keys win over environment variables.
type ChainCredentials []CredentialSource

// APIKey implements CredentialSource.
func (c ChainCredentials) APIKey(vendor string) string {
	for _, src := range c {
		if key := src.APIKey(vendor); key != "" {
			return key
		}
	}
	return ""
}

// EnvVarFor returns the environment variable a vendor's key lives in.
func EnvVarFor(vendor string) (string, bool) {
	name, ok := vendorEnv[vendor]
	return name, ok
}

// Vendors returns the known credential vendors.
func Vendors() []string {
	return []string{VendorOpenAI, VendorAnthropic, VendorGoogle, VendorOllama}
}

const (
	defaultOllamaBase    = "http://localhost:11434"
	defaultOpenAIBase    = "https://api.openai.com/v1"
	defaultAnthropicBase = "https://api.anthropic.com/v1"
	anthropicVersion     = "2023-06-01"
	maxTokens            = 4096
	requestTimeout       = 10 * time.Minute
)

// Summarizer routes summarization requests to LLM backends.
type Summarizer struct {
	client        *http.Client
	creds         CredentialSource
	ollamaBase    string
	openaiBase    string
	anthropicBase string
	logger        zerolog.Logger
}

// Option adjusts a Summarizer.
type Option func(*Summarizer)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Summarizer) { s.client = c }
}

// WithOllamaBase points the Ollama backend at a different server.
func WithOllamaBase(base string) Option {
	return func(s *Summarizer) { s.ollamaBase = strings.TrimRight(base, "/") }
}

// WithOpenAIBase overrides the OpenAI API endpoint.
func WithOpenAIBase(base string) Option {
	return func(s *Summarizer) { s.openaiBase = strings.TrimRight(base, "/") }
}

// WithAnthropicBase overrides the Anthropic API endpoint.
func WithAnthropicBase(base string) Option {
	return func(s *Summarizer) { s.anthropicBase = strings.TrimRight(base, "/") }
}

// NewSummarizer creates a summarizer backed by the given credentials.
func NewSummarizer(creds CredentialSource, opts ...Option) *Summarizer {
	s := &Summarizer{
		client:        &http.Client{Timeout: requestTimeout},
		creds:         creds,
		ollamaBase:    defaultOllamaBase,
		openaiBase:    defaultOpenAIBase,
		anthropicBase: defaultAnthropicBase,
		logger:        log.With().Str("component", "summarize").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize sends the transcript with the given instructions to the
// backend the model name routes to and returns the generated summary.
func (s *Summarizer) Summarize(ctx context.Context, transcript, instructions, model string) (string, error) {
	vendor := VendorFor(model)
	s.logger.Debug().Str("model", model).Str("vendor", vendor).Msg("Dispatching summarization request")

	switch vendor {
	case VendorOpenAI:
		return s.summarizeOpenAI(ctx, transcript, instructions, model)
	case VendorAnthropic:
		return s.summarizeAnthropic(ctx, transcript, instructions, model)
	case VendorGoogle:
		return s.summarizeGoogle(ctx, transcript, instructions, model)
	default:
		return s.summarizeOllama(ctx, transcript, instructions, model)
	}
}

// requireKey fetches a vendor key or fails with a missing_credential error.
func (s *Summarizer) requireKey(vendor string) (string, error) {
	key := s.creds.APIKey(vendor)
	if key == "" {
		return "", pipeline.NewStageError(pipeline.KindMissingCredential, "summarize",
			fmt.Sprintf("no API key configured for %s; add one in settings or set %s", vendor, mustEnvVar(vendor)), nil)
	}
	return key, nil
}

func mustEnvVar(vendor string) string {
	name, _ := EnvVarFor(vendor)
	return name
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Summarizer) summarizeOllama(ctx context.Context, transcript, instructions, model string) (string, error) {
	body := map[string]any{
		"model": model,
		"messages": []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: transcript},
		},
		"stream": false,
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := s.postJSON(ctx, s.ollamaBase+"/api/chat", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Message.Content == "" {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"ollama returned an empty response", nil)
	}
	return resp.Message.Content, nil
}

func (s *Summarizer) summarizeOpenAI(ctx context.Context, transcript, instructions, model string) (string, error) {
	key, err := s.requireKey(VendorOpenAI)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"model": model,
		"messages": []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: transcript},
		},
		"max_tokens": maxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + key}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := s.postJSON(ctx, s.openaiBase+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"openai returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func (s *Summarizer) summarizeAnthropic(ctx context.Context, transcript, instructions, model string) (string, error) {
	key, err := s.requireKey(VendorAnthropic)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"model":  model,
		"system": instructions,
		"messages": []chatMessage{
			{Role: "user", Content: transcript},
		},
		"max_tokens": maxTokens,
	}
	headers := map[string]string{
		"x-api-key":         key,
		"anthropic-version": anthropicVersion,
	}

	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := s.postJSON(ctx, s.anthropicBase+"/messages", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Content) == 0 || resp.Content[0].Text == "" {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"anthropic returned no content", nil)
	}
	return resp.Content[0].Text, nil
}

func (s *Summarizer) summarizeGoogle(ctx context.Context, transcript, instructions, model string) (string, error) {
	key, err := s.requireKey(VendorGoogle)
	if err != nil {
		return "", err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"could not create gemini client", err)
	}

	prompt := instructions + "\n\n" + transcript
	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), nil)
	if err != nil {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"gemini request failed", err)
	}

	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"gemini returned an empty response", nil)
	}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return "", pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			"gemini returned an empty response", nil)
	}
	return text.String(), nil
}

// postJSON executes one JSON request/response round trip against an LLM
// HTTP API.
func (s *Summarizer) postJSON(ctx context.Context, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return pipeline.NewStageError(pipeline.KindInternal, "summarize", "could not encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pipeline.NewStageError(pipeline.KindInternal, "summarize", "could not build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			fmt.Sprintf("LLM request failed: %v", err), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return pipeline.NewStageError(pipeline.KindBadResponse, "summarize", "could not read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return pipeline.NewStageError(pipeline.KindBadResponse, "summarize",
			fmt.Sprintf("LLM API returned %d: %s", resp.StatusCode, truncate(string(raw), 200)), nil)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return pipeline.NewStageError(pipeline.KindBadResponse, "summarize", "could not parse response", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

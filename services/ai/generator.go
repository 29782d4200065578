package aisvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/trezcool/ripoti/core"
	"github.com/trezcool/ripoti/core/editor"
	"github.com/trezcool/ripoti/core/report"
)

const maxErrorBody = 512

var ErrEmptyContent = errors.New("generator returned no content")

var formatInstructions = map[string]string{
	"paragraph": "Answer with one or two short paragraphs.",
	"bullets":   "Answer with a bullet list, one finding per line, each line starting with \"- \".",
	"summary":   "Answer with a concise summary of at most three sentences.",
}

// NewGenerator returns the HTTP generator when an endpoint is configured, the static one otherwise.
func NewGenerator(conf *core.Config, logger core.Logger) editor.ContentGenerator {
	if conf.AI.Endpoint == "" {
		logger.Warn("AI endpoint not configured: using the static generator")
		return StaticGenerator{}
	}
	return NewHTTPGenerator(conf, nil)
}

// BuildPrompt composes the text sent to the model: the user prompt, the format instructions
// and the context metrics, sorted by key.
func BuildPrompt(req report.GenerateRequest) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(req.Prompt))
	if instr, ok := formatInstructions[req.Format]; ok {
		sb.WriteString("\n\n")
		sb.WriteString(instr)
	}
	if len(req.ContextMetrics) > 0 {
		sb.WriteString("\n\nMetrics:")
		for _, key := range sortedKeys(req.ContextMetrics) {
			fmt.Fprintf(&sb, "\n- %s: %s", key, formatValue(req.ContextMetrics[key]))
		}
	}
	return sb.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatValue(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

type (
	// HTTPGenerator calls a text generation endpoint, at most conf.AI.RateLimit times per second.
	HTTPGenerator struct {
		endpoint string
		apiKey   string
		client   *http.Client
		limiter  *rate.Limiter
	}

	generateBody struct {
		Prompt  string             `json:"prompt"`
		Format  string             `json:"format"`
		Metrics map[string]float64 `json:"metrics,omitempty"`
	}

	generateResponse struct {
		Content string `json:"content"`
	}
)

var _ editor.ContentGenerator = (*HTTPGenerator)(nil)

// NewHTTPGenerator uses client when given, a client with conf.AI.Timeout otherwise.
func NewHTTPGenerator(conf *core.Config, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = &http.Client{Timeout: conf.AI.Timeout}
	}
	limit := rate.Limit(conf.AI.RateLimit)
	if conf.AI.RateLimit <= 0 {
		limit = rate.Inf
	}
	burst := conf.AI.RateBurst
	if burst < 1 {
		burst = 1
	}
	return &HTTPGenerator{
		endpoint: conf.AI.Endpoint,
		apiKey:   conf.AI.APIKey,
		client:   client,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (g *HTTPGenerator) Generate(ctx context.Context, req report.GenerateRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "waiting for rate limiter")
	}

	body, err := json.Marshal(generateBody{Prompt: BuildPrompt(req), Format: req.Format, Metrics: req.ContextMetrics})
	if err != nil {
		return "", errors.Wrap(err, "encoding request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "calling generator")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", errors.Errorf("generator responded %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", errors.Wrap(err, "decoding response")
	}
	content := strings.TrimSpace(out.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

// StaticGenerator writes the context metrics back in the requested format, without any model.
type StaticGenerator struct{}

var _ editor.ContentGenerator = StaticGenerator{}

func (StaticGenerator) Generate(ctx context.Context, req report.GenerateRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	keys := sortedKeys(req.ContextMetrics)
	if len(keys) == 0 {
		return "No data available for this period.", nil
	}

	facts := make([]string, 0, len(keys))
	for _, key := range keys {
		facts = append(facts, fmt.Sprintf("%s is %s", key, formatValue(req.ContextMetrics[key])))
	}
	switch req.Format {
	case "bullets":
		return "- " + strings.Join(facts, "\n- "), nil
	case "summary":
		return fmt.Sprintf("Over the period, %s.", strings.Join(facts, ", ")), nil
	default:
		return fmt.Sprintf("For the selected period, %s. These figures reflect the latest available data.", strings.Join(facts, ", ")), nil
	}
}

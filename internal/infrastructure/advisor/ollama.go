package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vforex/quantpilot/internal/domain"
	"go.uber.org/zap"
)

const (
	tagsTimeout     = 5 * time.Second
	generateTimeout = 30 * time.Second
)

// OllamaAdvisor validates signals against a local LLM served by Ollama.
// The advisor is mandatory on the trade path: when it is unreachable the
// pipeline rejects the signal instead of trading unreviewed.
type OllamaAdvisor struct {
	baseURL  string
	model    string
	client   *http.Client
	playbook *Playbook
	logger   *zap.Logger

	mu     sync.Mutex
	ready  bool
	models []string
}

// NewOllamaAdvisor probes the Ollama daemon once so startup logs show the
// advisory state. The playbook may be nil.
func NewOllamaAdvisor(baseURL, model string, playbook *Playbook, logger *zap.Logger) *OllamaAdvisor {
	a := &OllamaAdvisor{
		baseURL:  strings.TrimRight(baseURL, "/"),
		model:    model,
		client:   &http.Client{Timeout: generateTimeout},
		playbook: playbook,
		logger:   logger,
	}
	a.refresh(context.Background())
	return a
}

// IsReady reports whether Ollama answers with at least one model loaded.
// Every call re-probes, readiness changes while the trader runs.
func (a *OllamaAdvisor) IsReady(ctx context.Context) bool {
	a.refresh(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// refresh re-checks /api/tags and records the loaded model set.
func (a *OllamaAdvisor) refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, tagsTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		a.setReady(false, nil)
		return
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.setReady(false, nil)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.setReady(false, nil)
		return
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		a.setReady(false, nil)
		return
	}

	models := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		models = append(models, m.Name)
	}
	a.setReady(len(models) > 0, models)
}

func (a *OllamaAdvisor) setReady(ready bool, models []string) {
	a.mu.Lock()
	prev := a.ready
	a.ready = ready
	a.models = models
	a.mu.Unlock()

	if ready == prev {
		return
	}
	if ready {
		a.logger.Info("advisor ready", zap.Strings("models", models))
	} else {
		a.logger.Warn("advisor offline, signals will be rejected")
	}
}

func (a *OllamaAdvisor) hasModel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.models {
		if m == a.model {
			return true
		}
	}
	return false
}

// Validate asks the model for a verdict on the signal. Any failure comes
// back wrapping ErrAdvisoryUnavailable.
func (a *OllamaAdvisor) Validate(ctx context.Context, signal *domain.Signal) (*domain.AdvisorVerdict, error) {
	if !a.IsReady(ctx) {
		return nil, fmt.Errorf("validate %s: %w", signal.Symbol, domain.ErrAdvisoryUnavailable)
	}
	if !a.hasModel() {
		return nil, fmt.Errorf("model %s not loaded: %w", a.model, domain.ErrAdvisoryUnavailable)
	}

	body, _ := json.Marshal(map[string]interface{}{
		"model":  a.model,
		"prompt": a.buildPrompt(signal),
		"stream": false,
		"format": "json",
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisor generate: %w: %v", domain.ErrAdvisoryUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("advisor reply: %w: %v", domain.ErrAdvisoryUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("advisor status %d: %w", resp.StatusCode, domain.ErrAdvisoryUnavailable)
	}

	var wrapper struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &wrapper); err != nil {
		return nil, fmt.Errorf("advisor reply: %w: %v", domain.ErrAdvisoryUnavailable, err)
	}

	verdict := parseVerdict(wrapper.Response)
	a.logger.Info("advisor verdict",
		zap.String("symbol", signal.Symbol),
		zap.String("decision", string(verdict.Decision)),
		zap.Float64("confidence", verdict.Confidence))
	return verdict, nil
}

// parseVerdict decodes the model's JSON answer, salvaging a direction from
// plain text when the model ignored the format instruction.
func parseVerdict(raw string) *domain.AdvisorVerdict {
	var payload struct {
		Decision   string  `json:"decision"`
		Confidence float64 `json:"confidence"`
		Reason     string  `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err == nil && payload.Decision != "" {
		return &domain.AdvisorVerdict{
			Decision:   parseDecision(payload.Decision),
			Confidence: payload.Confidence,
			Reason:     payload.Reason,
		}
	}

	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, "BUY"):
		return &domain.AdvisorVerdict{Decision: domain.DirectionBuy, Confidence: 0.5, Reason: "approved (parsed from text)"}
	case strings.Contains(upper, "SELL"):
		return &domain.AdvisorVerdict{Decision: domain.DirectionSell, Confidence: 0.5, Reason: "approved (parsed from text)"}
	default:
		return &domain.AdvisorVerdict{Decision: domain.DirectionNeutral, Confidence: 0, Reason: "advisor response unclear"}
	}
}

func parseDecision(s string) domain.Direction {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return domain.DirectionBuy
	case "SELL":
		return domain.DirectionSell
	default:
		return domain.DirectionNeutral
	}
}

func (a *OllamaAdvisor) buildPrompt(signal *domain.Signal) string {
	guidance := generalGuidance
	if a.playbook != nil {
		guidance = a.playbook.RelevantContext(signal.Reasoning)
	}

	var b strings.Builder
	b.WriteString("[CONTEXT]\nYou are a senior trading assistant validating quantitative signals.\n\n")
	fmt.Fprintf(&b, "[MARKET DATA]\nSymbol: %s\nDirection: %s\nRegime: %s\nConfidence: %.2f\nQuant Reasoning: %s\n\n",
		signal.Symbol, signal.Direction, signal.Regime, signal.Confidence, strings.Join(signal.Reasoning, ", "))
	fmt.Fprintf(&b, "[STRATEGY PLAYBOOK]\n%s\n\n", guidance)
	b.WriteString("[INSTRUCTION]\nAnalyze the setup. If it matches the playbook and regime, output BUY or SELL. If too risky or contradictory, output HOLD.\n\n")
	b.WriteString(`Respond ONLY with JSON: {"decision": "BUY" | "SELL" | "HOLD", "confidence": 0.0-1.0, "reason": "one concise sentence"}`)
	return b.String()
}

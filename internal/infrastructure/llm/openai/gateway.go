package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
	"github.com/kirillkom/compliance-analyzer/internal/infrastructure/resilience"
)

const (
	PoolPrimary  = "primary"
	PoolFallback = "fallback"
)

// Observer receives per-call LLM outcomes for metrics.
type Observer interface {
	ObserveLLMCall(pool, outcome string, duration time.Duration)
	ObserveTokens(pool string, usage domain.TokenUsage)
}

type GatewayConfig struct {
	Primary     []Endpoint
	Fallback    []Endpoint
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	RetryDelay  time.Duration
	// RequestsPerSecond bounds outgoing calls; zero disables the limiter.
	RequestsPerSecond float64
	Timeout           time.Duration
}

type pool struct {
	name      string
	endpoints []Endpoint
	next      atomic.Uint64
}

func (p *pool) pick() Endpoint {
	idx := p.next.Add(1) - 1
	return p.endpoints[idx%uint64(len(p.endpoints))]
}

// Gateway fans chat completions across a primary and a fallback pool of
// endpoints. Each attempt takes the next endpoint of the pool in round-robin
// order; the fallback pool runs only after the primary pool is exhausted.
type Gateway struct {
	client      *Client
	pools       []*pool
	executor    *resilience.Executor
	limiter     *rate.Limiter
	temperature float64
	maxTokens   int
	observer    Observer
}

func NewGateway(cfg GatewayConfig, client *Client, executor *resilience.Executor, observer Observer) *Gateway {
	if client == nil {
		client = NewClient(cfg.Timeout)
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.LLMConfig(cfg.MaxRetries, cfg.RetryDelay))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxTokens
	}

	g := &Gateway{
		client:      client,
		executor:    executor,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		observer:    observer,
	}
	if len(cfg.Primary) > 0 {
		g.pools = append(g.pools, &pool{name: PoolPrimary, endpoints: cfg.Primary})
	}
	if len(cfg.Fallback) > 0 {
		g.pools = append(g.pools, &pool{name: PoolFallback, endpoints: cfg.Fallback})
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return g
}

func (g *Gateway) Configured() bool {
	return len(g.pools) > 0
}

// Temperature is the configured default sampling temperature.
func (g *Gateway) Temperature() float64 {
	return g.temperature
}

func (g *Gateway) Complete(ctx context.Context, req domain.CompletionRequest) (domain.Completion, error) {
	if len(g.pools) == 0 {
		return domain.Completion{}, domain.WrapError(domain.ErrLLMUnavailable, "llm complete", errors.New("no endpoints configured"))
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = g.maxTokens
	}

	var lastErr error
	for _, p := range g.pools {
		completion, err := g.completeWithPool(ctx, p, req)
		if err == nil {
			return completion, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.Completion{}, ctxErr
		}
		lastErr = err
		slog.Warn("llm_pool_exhausted",
			"pool", p.name,
			"endpoints", len(p.endpoints),
			"error", err,
		)
	}
	return domain.Completion{}, domain.WrapError(domain.ErrLLMUnavailable, "llm complete", lastErr)
}

func (g *Gateway) completeWithPool(ctx context.Context, p *pool, req domain.CompletionRequest) (domain.Completion, error) {
	completion, err := resilience.Call(ctx, g.executor, "llm."+p.name, func(ctx context.Context) (domain.Completion, error) {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return domain.Completion{}, err
			}
		}
		ep := p.pick()
		started := time.Now()
		out, err := g.client.ChatCompletion(ctx, ep, req)
		if err != nil {
			g.observeCall(p.name, "error", time.Since(started))
			slog.Warn("llm_attempt_failed",
				"pool", p.name,
				"endpoint", ep.URL,
				"deployment", ep.Deployment,
				"error", err,
			)
			return domain.Completion{}, err
		}
		g.observeCall(p.name, "success", time.Since(started))
		out.Provider = p.name
		return out, nil
	}, classifyLLMError)
	if err != nil {
		return domain.Completion{}, err
	}
	if g.observer != nil {
		g.observer.ObserveTokens(p.name, completion.Usage)
	}
	return completion, nil
}

func (g *Gateway) CompleteJSON(ctx context.Context, req domain.CompletionRequest) (domain.JSONCompletion, error) {
	req.JSONMode = true
	completion, err := g.Complete(ctx, req)
	if err != nil {
		return domain.JSONCompletion{}, err
	}

	out := domain.JSONCompletion{Completion: completion}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(extractJSONObject(completion.Content)), &parsed); err != nil {
		slog.Warn("llm_json_parse_failed", "model", completion.Model, "error", err)
		return out, nil
	}
	out.Parsed = parsed
	return out, nil
}

func (g *Gateway) observeCall(pool, outcome string, d time.Duration) {
	if g.observer != nil {
		g.observer.ObserveLLMCall(pool, outcome, d)
	}
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

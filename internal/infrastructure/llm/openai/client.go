package openai

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// EndpointKind selects the URL layout and auth header of an endpoint.
type EndpointKind string

const (
	KindAzure  EndpointKind = "azure"
	KindOpenAI EndpointKind = "openai"
)

type Endpoint struct {
	Kind       EndpointKind
	URL        string
	APIKey     string
	Deployment string
	APIVersion string
}

// Client sends chat completion requests to a single endpoint.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage domain.TokenUsage `json:"usage"`
}

func (c *Client) ChatCompletion(ctx context.Context, ep Endpoint, req domain.CompletionRequest) (domain.Completion, error) {
	body := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if ep.Kind == KindOpenAI {
		body.Model = ep.Deployment
	}
	if req.JSONMode {
		body.ResponseFormat = map[string]string{"type": "json_object"}
	}

	var resp chatResponse
	if err := c.postJSON(ctx, ep, body, &resp); err != nil {
		return domain.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("chat completion: empty choices")
	}
	model := resp.Model
	if model == "" {
		model = ep.Deployment
	}
	return domain.Completion{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage:   resp.Usage,
	}, nil
}

func completionURL(ep Endpoint) string {
	base := strings.TrimRight(ep.URL, "/")
	if ep.Kind == KindOpenAI {
		if strings.HasSuffix(base, "/v1") {
			return base + "/chat/completions"
		}
		return base + "/v1/chat/completions"
	}
	version := ep.APIVersion
	if version == "" {
		version = domain.DefaultAPIVersion
	}
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		base, url.PathEscape(ep.Deployment), url.QueryEscape(version))
}

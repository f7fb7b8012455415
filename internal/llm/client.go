// Package llm implements the generative collaborator boundary: plan text from
// a document, slide imagery, and transition video between two slide frames.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/nanoslide/nanoslide/internal/domain"
	"github.com/nanoslide/nanoslide/internal/observability"
)

const (
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultPlanModel  = "gemini-3-pro-preview"
	defaultImageModel = "gemini-3-pro-image-preview"
	defaultVideoModel = "veo-3.1-generate-preview"
)

// Client handles communication with the generative API.
type Client struct {
	apiKey       string
	baseURL      string
	planModel    string
	imageModel   string
	videoModel   string
	pollInterval time.Duration
	videoTimeout time.Duration
	httpClient   *http.Client
	logger       *observability.Logger
	retry        *RetryConfig
}

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	BaseURL      string
	PlanModel    string
	ImageModel   string
	VideoModel   string
	Timeout      time.Duration
	PollInterval time.Duration
	VideoTimeout time.Duration
	Logger       *observability.Logger
}

// NewClient creates a new generative API client.
func NewClient(apiKey string, opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultBaseURL
	}
	if opts.PlanModel == "" {
		opts.PlanModel = defaultPlanModel
	}
	if opts.ImageModel == "" {
		opts.ImageModel = defaultImageModel
	}
	if opts.VideoModel == "" {
		opts.VideoModel = defaultVideoModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.VideoTimeout <= 0 {
		opts.VideoTimeout = 10 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = observability.DefaultLogger()
	}

	return &Client{
		apiKey:       apiKey,
		baseURL:      opts.BaseURL,
		planModel:    opts.PlanModel,
		imageModel:   opts.ImageModel,
		videoModel:   opts.VideoModel,
		pollInterval: opts.PollInterval,
		videoTimeout: opts.VideoTimeout,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		logger:       opts.Logger.WithOperation("llm"),
		retry:        DefaultRetryConfig(),
	}
}

// Part represents one part of generative content (text or inline bytes).
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData carries base64 payloads in requests and responses.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Content groups the parts of one message.
type Content struct {
	Parts []Part `json:"parts"`
}

// generateRequest is the generateContent request body.
type generateRequest struct {
	Contents []Content `json:"contents"`
}

// generateResponse is the generateContent response body.
type generateResponse struct {
	Candidates []struct {
		Content Content `json:"content"`
	} `json:"candidates"`
}

// GeneratePlan sends the document and the user's style prompt to the plan
// model and returns the raw model text. The prompt is passed through
// verbatim, never validated.
func (c *Client) GeneratePlan(ctx context.Context, pdf []byte, prompt string) (string, error) {
	req := generateRequest{
		Contents: []Content{{Parts: []Part{
			{InlineData: &InlineData{MimeType: "application/pdf", Data: base64.StdEncoding.EncodeToString(pdf)}},
			{Text: prompt},
		}}},
	}

	resp, err := c.generateContent(ctx, c.planModel, req)
	if err != nil {
		return "", err
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", domain.APIError("plan response contained no text", nil)
}

// GenerateImage renders one slide image from a prompt. reference, when
// non-nil, is a previously rendered slide sent along for style continuity.
func (c *Client) GenerateImage(ctx context.Context, prompt string, reference []byte) ([]byte, error) {
	parts := []Part{{Text: prompt}}
	if len(reference) > 0 {
		parts = append(parts, Part{InlineData: &InlineData{
			MimeType: "image/png",
			Data:     base64.StdEncoding.EncodeToString(reference),
		}})
	}

	resp, err := c.generateContent(ctx, c.imageModel, generateRequest{Contents: []Content{{Parts: parts}}})
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, domain.APIError("failed to decode image payload", err)
				}
				return data, nil
			}
		}
	}
	return nil, domain.APIError("image response contained no image", nil)
}

// videoFrame carries one bounding frame of a video interpolation request.
type videoFrame struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MimeType           string `json:"mimeType"`
}

// videoRequest is the predictLongRunning request body.
type videoRequest struct {
	Instances []videoInstance `json:"instances"`
}

type videoInstance struct {
	Prompt    string      `json:"prompt"`
	Image     *videoFrame `json:"image,omitempty"`
	LastFrame *videoFrame `json:"lastFrame,omitempty"`
}

// videoOperation is the long-running operation envelope.
type videoOperation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Response *struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI                string `json:"uri,omitempty"`
					BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response,omitempty"`
}

// GenerateVideo produces a transition video interpolating between the first
// and last frame images. The API is a long-running operation: submit, poll
// with the configured interval, then download the result.
func (c *Client) GenerateVideo(ctx context.Context, prompt string, first, last []byte) ([]byte, error) {
	req := videoRequest{Instances: []videoInstance{{
		Prompt:    prompt,
		Image:     &videoFrame{BytesBase64Encoded: base64.StdEncoding.EncodeToString(first), MimeType: "image/png"},
		LastFrame: &videoFrame{BytesBase64Encoded: base64.StdEncoding.EncodeToString(last), MimeType: "image/png"},
	}}}

	op, err := c.submitVideo(ctx, req)
	if err != nil {
		return nil, err
	}

	op, err = c.pollVideo(ctx, op.Name)
	if err != nil {
		return nil, err
	}

	if op.Error != nil {
		return nil, domain.APIError(fmt.Sprintf("video generation failed: %s", op.Error.Message), nil)
	}
	if op.Response == nil || len(op.Response.GenerateVideoResponse.GeneratedSamples) == 0 {
		return nil, domain.APIError("video response contained no samples", nil)
	}

	video := op.Response.GenerateVideoResponse.GeneratedSamples[0].Video
	if video.BytesBase64Encoded != "" {
		data, err := base64.StdEncoding.DecodeString(video.BytesBase64Encoded)
		if err != nil {
			return nil, domain.APIError("failed to decode video payload", err)
		}
		return data, nil
	}
	if video.URI != "" {
		return c.download(ctx, video.URI)
	}
	return nil, domain.APIError("video sample had neither bytes nor URI", nil)
}

// generateContent posts a generateContent request with retry.
func (c *Client) generateContent(ctx context.Context, model string, req generateRequest) (*generateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.APIError("failed to marshal request", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model)
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.APIError("failed to decode response", err)
	}
	return &out, nil
}

// submitVideo starts the long-running video operation.
func (c *Client) submitVideo(ctx context.Context, req videoRequest) (*videoOperation, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.APIError("failed to marshal video request", err)
	}

	url := fmt.Sprintf("%s/models/%s:predictLongRunning", c.baseURL, c.videoModel)
	resp, err := c.post(ctx, url, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, domain.APIError(fmt.Sprintf("video API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	var op videoOperation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, domain.APIError("failed to decode video operation", err)
	}
	if op.Name == "" {
		return nil, domain.APIError("video API returned no operation name", nil)
	}
	return &op, nil
}

// pollVideo polls the operation until it completes or the video timeout expires.
func (c *Client) pollVideo(ctx context.Context, name string) (*videoOperation, error) {
	deadline := time.Now().Add(c.videoTimeout)
	url := fmt.Sprintf("%s/%s", c.baseURL, name)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		if time.Now().After(deadline) {
			return nil, domain.APIError(fmt.Sprintf("video operation %s timed out after %v", name, c.videoTimeout), nil)
		}

		resp, err := c.get(ctx, url)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, domain.APIError(fmt.Sprintf("poll returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
		}

		var op videoOperation
		err = json.NewDecoder(resp.Body).Decode(&op)
		resp.Body.Close()
		if err != nil {
			return nil, domain.APIError("failed to decode operation status", err)
		}

		if op.Done {
			return &op, nil
		}

		c.logger.Debug().Str("operation", name).Msg("Video operation still running")
	}
}

// download fetches a generated artifact by URI.
func (c *Client) download(ctx context.Context, uri string) ([]byte, error) {
	resp, err := c.get(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.APIError(fmt.Sprintf("download returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.APIError("failed to read downloaded payload", err)
	}
	return data, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	return c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", c.apiKey)
		return c.httpClient.Do(req)
	})
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	return c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("x-goog-api-key", c.apiKey)
		return c.httpClient.Do(req)
	})
}

package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrDisabled is returned by every call when no API key is configured. The
// game engine treats it like any other failure and uses its fallbacks.
var ErrDisabled = errors.New("ai: disabled")

type Config struct {
	APIKey         string
	BaseURL        string // e.g. https://generativelanguage.googleapis.com/v1beta/models
	MissionModel   string
	JudgeModel     string
	Timeout        time.Duration
	MaxConcurrency int
}

// Client talks to the Gemini generateContent API. It implements both
// game.MissionProvider and game.Judge.
type Client struct {
	cfg  Config
	http *http.Client
	sem  *semaphore.Weighted
}

func NewClient(cfg Config) *Client {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		sem:  semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
	}
}

func (c *Client) Enabled() bool { return c.cfg.APIKey != "" }

func (c *Client) endpoint(model string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/" + model + ":generateContent"
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []part `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string `json:"responseMimeType"`
	} `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// generate sends one prompt and returns the text of the first candidate,
// which is expected to be JSON.
func (c *Client) generate(ctx context.Context, model string, parts ...part) (string, error) {
	if !c.Enabled() {
		return "", ErrDisabled
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer c.sem.Release(1)

	var reqBody generateRequest
	reqBody.Contents = append(reqBody.Contents, struct {
		Parts []part `json:"parts"`
	}{Parts: parts})
	reqBody.GenerationConfig.ResponseMimeType = "application/json"

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(model), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gemini %s: status %d", model, resp.StatusCode)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}
	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("empty response from gemini")
	}
	return gr.Candidates[0].Content.Parts[0].Text, nil
}

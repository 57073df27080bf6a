package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"example.com/photohunt/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tinyPNG = "data:image/png;base64,iVBORw0KGgo="

// fakeGemini answers every generateContent call with text as the first
// candidate and keeps the last request body.
type fakeGemini struct {
	text   string
	status int
	calls  atomic.Int64
	last   atomic.Value // generateRequest
	path   atomic.Value // string
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.calls.Add(1)
	f.path.Store(r.URL.Path)
	if r.Header.Get("x-goog-api-key") != "test-key" {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var req generateRequest
	_ = json.Unmarshal(body, &req)
	f.last.Store(req)

	if f.status != 0 {
		w.WriteHeader(f.status)
		return
	}
	resp := map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": f.text}}}},
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, f *fakeGemini) *Client {
	t.Helper()
	ts := httptest.NewServer(f)
	t.Cleanup(ts.Close)
	return NewClient(Config{
		APIKey:         "test-key",
		BaseURL:        ts.URL + "/v1beta/models/",
		MissionModel:   "mission-model",
		JudgeModel:     "judge-model",
		Timeout:        time.Second,
		MaxConcurrency: 2,
	})
}

func TestClient_Missions(t *testing.T) {
	f := &fakeGemini{text: `{"missions": [
		"A red apple",
		"  ",
		"this mission is far too long to be accepted because it has more than twelve words",
		"Something shiny",
		"A spoon"
	]}`}
	c := newTestClient(t, f)

	got, err := c.Missions(context.Background(), game.Medium, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A red apple", "Something shiny"}, got)
	assert.Equal(t, "/v1beta/models/mission-model:generateContent", f.path.Load())

	req := f.last.Load().(generateRequest)
	require.Len(t, req.Contents, 1)
	assert.Contains(t, req.Contents[0].Parts[0].Text, "medium")
	assert.Equal(t, "application/json", req.GenerationConfig.ResponseMimeType)
}

func TestClient_Judge(t *testing.T) {
	f := &fakeGemini{text: `{"valid": true, "confidence": 1.7, "reason": "That's a mug"}`}
	c := newTestClient(t, f)

	v, err := c.Judge(context.Background(), tinyPNG, "A cup or a mug")
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, 1.0, v.Confidence, "confidence is clamped")
	assert.Equal(t, "That's a mug", v.Reason)

	req := f.last.Load().(generateRequest)
	parts := req.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "A cup or a mug")
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, "image/png", parts[1].InlineData.MimeType)
	assert.Equal(t, strings.TrimPrefix(tinyPNG, "data:image/png;base64,"), parts[1].InlineData.Data)
}

func TestClient_Failures(t *testing.T) {
	cases := []struct {
		name string
		run  func(t *testing.T)
	}{
		{
			name: "disabled without api key",
			run: func(t *testing.T) {
				c := NewClient(Config{BaseURL: "http://127.0.0.1:1"})
				assert.False(t, c.Enabled())
				_, err := c.Missions(context.Background(), game.Easy, 3)
				assert.ErrorIs(t, err, ErrDisabled)
				_, err = c.Judge(context.Background(), tinyPNG, "x")
				assert.ErrorIs(t, err, ErrDisabled)
			},
		},
		{
			name: "non-200 status",
			run: func(t *testing.T) {
				c := newTestClient(t, &fakeGemini{status: http.StatusTooManyRequests})
				_, err := c.Missions(context.Background(), game.Easy, 3)
				assert.ErrorContains(t, err, "429")
			},
		},
		{
			name: "model answers with prose",
			run: func(t *testing.T) {
				c := newTestClient(t, &fakeGemini{text: "sure! here you go"})
				_, err := c.Judge(context.Background(), tinyPNG, "x")
				assert.Error(t, err)
			},
		},
		{
			name: "image is not a data uri",
			run: func(t *testing.T) {
				f := &fakeGemini{text: `{"valid": true}`}
				c := newTestClient(t, f)
				for _, img := range []string{
					"https://example.com/cat.jpg",
					"data:text/plain;base64,aGVsbG8=",
					"data:image/png,raw",
					"data:image/png;base64,%%%",
				} {
					_, err := c.Judge(context.Background(), img, "x")
					assert.ErrorIs(t, err, ErrUnsupportedImage, img)
				}
				assert.Zero(t, f.calls.Load(), "bad images never reach the API")
			},
		},
		{
			name: "cancelled context",
			run: func(t *testing.T) {
				c := newTestClient(t, &fakeGemini{text: `{"missions": []}`})
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				_, err := c.Missions(ctx, game.Easy, 3)
				assert.ErrorIs(t, err, context.Canceled)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, tc.run)
	}
}

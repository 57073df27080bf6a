package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"example.com/photohunt/internal/game"
)

var ErrUnsupportedImage = errors.New("ai: image must be a base64 data URI")

// Judge asks the vision model whether the photo shows the mission.
func (c *Client) Judge(ctx context.Context, image, mission string) (game.Verdict, error) {
	mime, data, err := parseDataURI(image)
	if err != nil {
		return game.Verdict{}, err
	}

	prompt := fmt.Sprintf(`You are the referee of a photo scavenger hunt.
Mission: %q
Decide whether the attached photo clearly satisfies the mission.
Return ONLY valid JSON: {"valid": true|false, "confidence": 0.0-1.0, "reason": "one short friendly sentence"}`, mission)

	text, err := c.generate(ctx, c.cfg.JudgeModel,
		part{Text: prompt},
		part{InlineData: &inlineData{MimeType: mime, Data: data}},
	)
	if err != nil {
		return game.Verdict{}, err
	}

	var v game.Verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return game.Verdict{}, fmt.Errorf("decode verdict: %w", err)
	}
	v.Confidence = min(max(v.Confidence, 0), 1)
	return v, nil
}

// parseDataURI splits data:<mime>;base64,<payload> and checks the payload decodes.
func parseDataURI(s string) (mime, data string, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", "", ErrUnsupportedImage
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", ErrUnsupportedImage
	}
	mime, ok = strings.CutSuffix(meta, ";base64")
	if !ok || !strings.HasPrefix(mime, "image/") {
		return "", "", ErrUnsupportedImage
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return mime, data, nil
}

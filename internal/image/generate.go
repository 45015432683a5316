package image

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const MimeType = "image/png"

type TextPrompt struct {
	Text string `json:"text"`
}

// Params is the request body sent to the text-to-image endpoint. Everything
// except the prompt is fixed.
type Params struct {
	TextPrompts []TextPrompt `json:"text_prompts"`
	CfgScale    float64      `json:"cfg_scale"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Steps       int          `json:"steps"`
	Samples     int          `json:"samples"`
}

func NewParams(prompt string) Params {
	return Params{
		TextPrompts: []TextPrompt{{Text: strings.TrimSpace(prompt)}},
		CfgScale:    7,
		Height:      1024,
		Width:       1024,
		Steps:       30,
		Samples:     1,
	}
}

func (p Params) Prompt() string {
	if len(p.TextPrompts) == 0 {
		return ""
	}
	return p.TextPrompts[0].Text
}

type Artifact struct {
	Base64       string `json:"base64"`
	Seed         uint32 `json:"seed"`
	FinishReason string `json:"finishReason"`
}

func (a Artifact) DataURI() string {
	return "data:" + MimeType + ";base64," + a.Base64
}

var ErrMalformedResponse = errors.New("malformed response from image service")

// APIError is returned for any response other than 200. Name and Message are decoded
// from the body when it is JSON and left empty otherwise.
type APIError struct {
	StatusCode int
	Status     string
	Name       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("image service returned %s", e.Status)
	}
	return fmt.Sprintf("image service returned %s: %s", e.Status, e.Message)
}

type Generator interface {
	Generate(context.Context, Params) (Artifact, error)
}

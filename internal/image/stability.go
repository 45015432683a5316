package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dmorgan81/stabilitybot/internal/log"
	"github.com/samber/do"
)

const DefaultEndpoint = "https://api.stability.ai/v1/generation/stable-diffusion-xl-1024-v1-0/text-to-image"

// error bodies larger than this are not worth decoding
const maxErrorBody = 64 << 10

type StabilityGenerator struct {
	client   *http.Client
	key      string
	endpoint string
}

func NewStabilityGenerator(i *do.Injector) (Generator, error) {
	return &StabilityGenerator{
		client:   do.MustInvoke[*http.Client](i),
		key:      do.MustInvokeNamed[string](i, "stability_key"),
		endpoint: do.MustInvokeNamed[string](i, "stability_endpoint"),
	}, nil
}

type generationResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

type errorResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func (g *StabilityGenerator) Generate(ctx context.Context, params Params) (Artifact, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("stability").With("endpoint", g.endpoint)
	log.Info("generating image via stability")

	body, err := json.Marshal(params)
	if err != nil {
		return Artifact{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Artifact{}, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.key)

	resp, err := g.client.Do(req)
	if err != nil {
		return Artifact{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: resp.StatusCode, Status: resp.Status}
		var e errorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&e); err == nil {
			apiErr.Name, apiErr.Message = e.Name, e.Message
		}
		return Artifact{}, apiErr
	}

	var out generationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if len(out.Artifacts) == 0 || out.Artifacts[0].Base64 == "" {
		return Artifact{}, fmt.Errorf("%w: no artifacts", ErrMalformedResponse)
	}

	artifact := out.Artifacts[0]
	log.Info("received image via stability", "seed", artifact.Seed, "finishReason", artifact.FinishReason)
	return artifact, nil
}

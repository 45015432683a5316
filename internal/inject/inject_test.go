package inject

import (
	"context"
	"errors"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dmorgan81/stabilitybot/internal/handler"
	"github.com/dmorgan81/stabilitybot/internal/param"
	"github.com/dmorgan81/stabilitybot/internal/session"
	"github.com/samber/do"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonPost(prompt string) events.LambdaFunctionURLRequest {
	req := events.LambdaFunctionURLRequest{
		Body:    `{"prompt":"` + prompt + `"}`,
		Headers: map[string]string{"content-type": "application/json"},
	}
	req.RequestContext.HTTP.Method = http.MethodPost
	return req
}

func TestSetup_WithoutKey(t *testing.T) {
	t.Setenv("STABILITY_KEY", "")
	t.Setenv("STABILITY_KEY_PARAM", "")
	t.Setenv("REQUEST_TIMEOUT", "")

	injector := Setup(context.Background())
	defer func() { _ = injector.Shutdown() }()

	assert.Equal(t, 60*time.Second, do.MustInvokeNamed[time.Duration](injector, "request_timeout"))

	h := do.MustInvoke[*handler.Handler](injector)
	resp, err := h.Handle(context.Background(), jsonPost("a cat"))
	require.NoError(t, err)

	var view session.View
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &view))
	assert.True(t, view.CredentialMissing)
	assert.Equal(t, "MissingCredential", view.ErrorKind)
}

type failingFetcher struct{ err error }

func (f failingFetcher) Fetch(context.Context, string) (string, error) {
	return "", f.err
}

func TestSetup_KeyFetchFailureIsMissingKey(t *testing.T) {
	t.Setenv("STABILITY_KEY", "")
	t.Setenv("STABILITY_KEY_PARAM", "/stabilitybot/key")
	t.Setenv("REQUEST_TIMEOUT", "")

	injector := Setup(context.Background())
	defer func() { _ = injector.Shutdown() }()
	do.OverrideValue[param.Fetcher](injector, failingFetcher{err: errors.New("AccessDeniedException")})

	var h *handler.Handler
	require.NotPanics(t, func() { h = do.MustInvoke[*handler.Handler](injector) })

	resp, err := h.Handle(context.Background(), jsonPost("a cat"))
	require.NoError(t, err)

	var view session.View
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &view))
	assert.True(t, view.CredentialMissing)
	assert.Equal(t, "MissingCredential", view.ErrorKind)
}

func TestSetup_EndToEnd(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "Bearer sk-local", r.Header.Get("Authorization"))
		if n > 1 {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid key"}`))
			return
		}
		_, _ = w.Write([]byte(`{"artifacts":[{"base64":"XYZ","seed":7,"finishReason":"SUCCESS"}]}`))
	}))
	defer srv.Close()

	t.Setenv("STABILITY_KEY", "sk-local")
	t.Setenv("STABILITY_ENDPOINT", srv.URL)
	t.Setenv("REQUEST_TIMEOUT", "5s")

	injector := Setup(context.Background())
	defer func() { _ = injector.Shutdown() }()
	h := do.MustInvoke[*handler.Handler](injector)

	resp, err := h.Handle(context.Background(), jsonPost("a cat"))
	require.NoError(t, err)
	var view session.View
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &view))
	assert.Equal(t, "data:image/png;base64,XYZ", view.Image)

	resp, err = h.Handle(context.Background(), jsonPost("a dog"))
	require.NoError(t, err)
	view = session.View{}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &view))
	assert.Equal(t, "InvalidCredential", view.ErrorKind)
	assert.True(t, view.CredentialMissing)
	assert.Equal(t, "data:image/png;base64,XYZ", view.Image)

	resp, err = h.Handle(context.Background(), jsonPost("a bird"))
	require.NoError(t, err)
	view = session.View{}
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &view))
	assert.Equal(t, "MissingCredential", view.ErrorKind)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSetup_BadTimeout(t *testing.T) {
	t.Setenv("REQUEST_TIMEOUT", "soon")

	injector := Setup(context.Background())
	_, err := do.InvokeNamed[time.Duration](injector, "request_timeout")
	assert.Error(t, err)
}

package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/dmorgan81/stabilitybot/internal/log"
	"github.com/dmorgan81/stabilitybot/internal/page"
	"github.com/dmorgan81/stabilitybot/internal/session"
	"github.com/samber/do"
	"github.com/samber/lo"
)

type Input struct {
	Prompt string `json:"prompt"`
}

type Handler struct {
	session   *session.Session
	templator *page.Templator
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		session:   do.MustInvoke[*session.Session](i),
		templator: do.MustInvoke[*page.Templator](i),
	}, nil
}

func (h *Handler) Handle(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	method := req.RequestContext.HTTP.Method
	log := log.FromContextOrDiscard(ctx).WithGroup("Handler").With("method", method, "path", req.RawPath)
	log.Info("handling function url request")

	wantsJSON := isJSON(header(req, "Accept")) || isJSON(header(req, "Content-Type"))

	switch method {
	case http.MethodGet:
	case http.MethodPost:
		input, err := parseInput(req)
		if err != nil {
			log.Warn("unreadable request body", "error", err)
			return textResponse(http.StatusBadRequest, "unreadable request body"), nil
		}
		if _, accepted := h.session.Submit(ctx, input.Prompt); !accepted {
			log.Info("submission in flight, rendering current state")
		}
	default:
		return textResponse(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)), nil
	}

	view := h.session.State().View()
	if wantsJSON {
		body, err := json.Marshal(view)
		if err != nil {
			return events.LambdaFunctionURLResponse{}, err
		}
		return response(http.StatusOK, "application/json", body), nil
	}

	html, err := h.templator.Template(ctx, page.FromView(view))
	if err != nil {
		return events.LambdaFunctionURLResponse{}, err
	}
	return response(http.StatusOK, "text/html; charset=utf-8", html), nil
}

func parseInput(req events.LambdaFunctionURLRequest) (Input, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return Input{}, err
		}
		body = decoded
	}

	var input Input
	if isJSON(header(req, "Content-Type")) {
		err := json.Unmarshal(body, &input)
		return input, err
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		return Input{}, err
	}
	input.Prompt = form.Get("prompt")
	return input, nil
}

// header looks up name ignoring case; function urls lowercase header names but
// direct invocations may not.
func header(req events.LambdaFunctionURLRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func isJSON(v string) bool {
	return strings.Contains(strings.ToLower(v), "application/json")
}

func response(status int, contentType string, body []byte) events.LambdaFunctionURLResponse {
	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":  contentType,
			"Cache-Control": "no-store",
		},
		Body: string(body),
	}
}

func textResponse(status int, msg string) events.LambdaFunctionURLResponse {
	return response(status, "text/plain; charset=utf-8", []byte(lo.Ternary(msg != "", msg, http.StatusText(status))))
}

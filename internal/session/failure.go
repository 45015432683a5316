package session

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dmorgan81/stabilitybot/internal/image"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindMissingCredential
	KindEmptyPrompt
	KindInvalidCredential
	KindQuotaExhausted
	KindContentModerationFlagged
	KindServiceError
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "MissingCredential"
	case KindEmptyPrompt:
		return "EmptyPrompt"
	case KindInvalidCredential:
		return "InvalidCredential"
	case KindQuotaExhausted:
		return "QuotaExhausted"
	case KindContentModerationFlagged:
		return "ContentModerationFlagged"
	case KindServiceError:
		return "ServiceError"
	default:
		return "Unknown"
	}
}

const (
	MsgMissingCredential = "Please configure your Stability AI API key (STABILITY_KEY_PARAM or STABILITY_KEY)."
	MsgEmptyPrompt       = "Please enter a prompt"
	MsgInvalidCredential = "Invalid API key. Please check your Stability AI API key."
	MsgQuotaExhausted    = "API credit exhausted. Please check your Stability AI account."
	MsgContentModeration = "Your prompt was flagged by content moderation. Please ensure your prompt follows the content guidelines."
	MsgUnknown           = "Failed to generate image. Please try again."
)

// moderationMarker is matched case-insensitively against the message of a 403.
// The service does not promise this wording.
const moderationMarker = "content moderation"

// Failure is a settled, user-facing error for one submission.
type Failure struct {
	Kind    Kind
	Message string
}

func (f *Failure) Error() string {
	return f.Kind.String() + ": " + f.Message
}

func newFailure(kind Kind, msg string) *Failure {
	return &Failure{Kind: kind, Message: msg}
}

// Classify maps an error from an image.Generator to a Failure.
func Classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var apiErr *image.APIError
	if !errors.As(err, &apiErr) {
		return newFailure(KindUnknown, MsgUnknown)
	}

	switch {
	case apiErr.StatusCode == http.StatusUnauthorized:
		return newFailure(KindInvalidCredential, MsgInvalidCredential)
	case apiErr.StatusCode == http.StatusPaymentRequired:
		return newFailure(KindQuotaExhausted, MsgQuotaExhausted)
	case apiErr.StatusCode == http.StatusForbidden &&
		strings.Contains(strings.ToLower(apiErr.Message), moderationMarker):
		return newFailure(KindContentModerationFlagged, MsgContentModeration)
	case apiErr.Message != "":
		return newFailure(KindServiceError, apiErr.Message)
	default:
		return newFailure(KindUnknown, MsgUnknown)
	}
}

package answer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrMalformedResponse means a 2xx body carried no usable answer text.
var ErrMalformedResponse = errors.New("malformed answer response")

// Kind classifies why an exchange failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidRequest
	KindClient
	KindServer
	KindNetwork
	KindTimeout
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "invalid_request"
	case KindClient:
		return "client_error"
	case KindServer:
		return "server_error"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// User-facing texts written into the transcript in place of an answer.
const (
	MsgInvalidRequest = "Requête invalide"
	MsgServer         = "Erreur serveur. Veuillez réessayer."
	MsgNetwork        = "Erreur de connexion. Vérifiez votre connexion internet."
	MsgTimeout        = "Délai d'attente dépassé. Veuillez réessayer."
	MsgMalformed      = "Réponse invalide du serveur"
	MsgUnknown        = "Une erreur inattendue est survenue."
)

// ServiceError carries the classified cause of a failed call.
type ServiceError struct {
	Kind   Kind
	Status int
	// Detail is the server-provided explanation, if any.
	Detail string
	// Message is the optional secondary "message" field of an error body.
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	var b strings.Builder
	b.WriteString("answer service ")
	b.WriteString(e.Kind.String())
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// statusError classifies a non-2xx response.
func statusError(status int, detail, message string) *ServiceError {
	kind := KindClient
	switch {
	case status == 400:
		kind = KindInvalidRequest
	case status >= 500:
		kind = KindServer
	}
	return &ServiceError{Kind: kind, Status: status, Detail: detail, Message: message}
}

// Classify maps any error from an Answerer onto a ServiceError.
func Classify(err error) *ServiceError {
	if err == nil {
		return nil
	}

	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ServiceError{Kind: KindTimeout, Err: err}
	}
	if errors.Is(err, ErrMalformedResponse) {
		return &ServiceError{Kind: KindMalformed, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ServiceError{Kind: KindTimeout, Err: err}
		}
		return &ServiceError{Kind: KindNetwork, Err: err}
	}
	return &ServiceError{Kind: KindUnknown, Err: err}
}

// Describe turns err into the human-readable text shown to the user. It never
// exposes raw error text.
func Describe(err error) string {
	svcErr := Classify(err)
	if svcErr == nil {
		return MsgUnknown
	}

	switch svcErr.Kind {
	case KindInvalidRequest:
		if svcErr.Detail != "" {
			return svcErr.Detail
		}
		return MsgInvalidRequest
	case KindClient:
		if svcErr.Detail != "" {
			return svcErr.Detail
		}
		message := svcErr.Message
		if message == "" {
			message = "Erreur inconnue"
		}
		return fmt.Sprintf("Erreur %d: %s", svcErr.Status, message)
	case KindServer:
		return MsgServer
	case KindNetwork:
		return MsgNetwork
	case KindTimeout:
		return MsgTimeout
	case KindMalformed:
		return MsgMalformed
	default:
		return MsgUnknown
	}
}

package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationPrefix names every tracer the service opens.
const InstrumentationPrefix = "github.com/tbourn/go-social-chat/"

// Span attribute keys shared by the services.
const (
	ConversationID = attribute.Key("chat.conversation.id")
	UserID         = attribute.Key("chat.user.id")
	PeerID         = attribute.Key("chat.peer.id")
	MessageID      = attribute.Key("chat.message.id")
	Page           = attribute.Key("chat.window.page")
	HasImage       = attribute.Key("chat.message.has_image")
	MessageCount   = attribute.Key("chat.window.messages")
	HasMore        = attribute.Key("chat.window.has_more")
	ConvCount      = attribute.Key("chat.conversations")
)

// Tracer returns the tracer for one component, e.g. "services/messages".
// It resolves the global provider on every call so SetupOTel may run later.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(InstrumentationPrefix + component)
}

// Finish records err on span, marking it failed. A nil err leaves the
// status unset.
func Finish(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

package handlers

import (
	"context"
	"net/http"

	"github.com/tbourn/go-social-chat/internal/domain"
	"github.com/tbourn/go-social-chat/internal/services"
)

// Conversations is the conversation surface the handlers call.
// *services.ConversationService implements it.
type Conversations interface {
	List(ctx context.Context, requesterID string) ([]domain.ConversationSummary, error)
	FetchWindow(ctx context.Context, conversationID, requesterID string, page int) (*domain.Window, error)
	WindowTag(ctx context.Context, conversationID, requesterID string, page int) (string, error)
	EnsureForFriendship(ctx context.Context, a, b string) (*domain.Conversation, bool, error)
}

// Messages is the message surface the handlers call.
// *services.MessageService implements it.
type Messages interface {
	Send(ctx context.Context, requesterID, conversationID string, in services.SendInput) (*domain.MessageView, error)
	Get(ctx context.Context, requesterID, conversationID, messageID string) (*domain.MessageView, error)
	Edit(ctx context.Context, requesterID, conversationID, messageID, content string) (*domain.MessageView, error)
	Delete(ctx context.Context, requesterID, conversationID, messageID string) error
}

// SendLedger remembers which message an idempotent send produced.
type SendLedger interface {
	Record(ctx context.Context, userID, conversationID, key, messageID string, status int) error
}

// Sockets upgrades a request into a realtime connection for userID.
type Sockets interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string) error
}

// Uploads bounds multipart image sends.
type Uploads struct {
	// MaxBytes caps the whole multipart body. Defaults to 10 MiB.
	MaxBytes int64
	// Dir receives spooled images until the asset service has them.
	// Empty means os.TempDir().
	Dir string
}

// Handlers groups the HTTP endpoints of the chat API.
type Handlers struct {
	conversations Conversations
	messages      Messages
	ledger        SendLedger
	sockets       Sockets
	uploads       Uploads
}

// New wires handlers to their collaborators. ledger and sockets may be nil:
// sends are then not recorded for replay and /ws answers 503.
func New(conversations Conversations, messages Messages, ledger SendLedger, sockets Sockets, uploads Uploads) *Handlers {
	if uploads.MaxBytes <= 0 {
		uploads.MaxBytes = 10 << 20
	}
	return &Handlers{
		conversations: conversations,
		messages:      messages,
		ledger:        ledger,
		sockets:       sockets,
		uploads:       uploads,
	}
}

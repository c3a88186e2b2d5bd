// Package dialog implements the per-user conversation state machine.
package dialog

import (
	"context"

	"github.com/ndmitriev/ratepulse/internal/menu"
)

// Messenger is the outbound half of the conversation surface. The
// controller is transport-agnostic; the Telegram adapter (or a test
// fake) satisfies this interface.
type Messenger interface {
	// Send delivers a plain text reply and returns its message id.
	Send(ctx context.Context, userID int64, text string) (int64, error)

	// SendChoice delivers a text reply with an attached selection menu
	// and returns the message id of the prompt.
	SendChoice(ctx context.Context, userID int64, text string, choices menu.Menu) (int64, error)

	// ShowHome presents the resting-state controls alongside text.
	// Transports without persistent controls just send the text.
	ShowHome(ctx context.Context, userID int64, text string) error

	// Retire removes previously sent messages from the conversation.
	Retire(ctx context.Context, userID int64, messageIDs ...int64) error
}

package dialog

import (
	"context"
	"fmt"

	"github.com/ndmitriev/ratepulse/internal/domain"
)

// Command entry points. Each is a thin wrapper around the state
// machine; the transport layer maps its command surface onto these.

// Help replies with the usage rundown.
func (c *Controller) Help(ctx context.Context, userID int64) error {
	defer c.locks.acquire(userID)()
	_, err := c.msgr.Send(ctx, userID, msgHelp)
	return err
}

// ChangeInstitution re-prompts a ready user for an institution, with a
// cancel option. requestMessageID is the user message that asked for
// the change; cancellation removes it together with the prompt.
func (c *Controller) ChangeInstitution(ctx context.Context, userID, requestMessageID int64) error {
	defer c.locks.acquire(userID)()

	s, err := c.readySession(ctx, userID)
	if err != nil || s == nil {
		return err
	}
	return c.promptInstitution(ctx, s, &requestMessageID, true)
}

// ChangeTopic re-prompts a ready user for a topic, with a cancel option.
func (c *Controller) ChangeTopic(ctx context.Context, userID, requestMessageID int64) error {
	defer c.locks.acquire(userID)()

	s, err := c.readySession(ctx, userID)
	if err != nil || s == nil {
		return err
	}
	return c.promptTopic(ctx, s, &requestMessageID, true)
}

// CurrentInstitution reports the user's resolved institution.
func (c *Controller) CurrentInstitution(ctx context.Context, userID int64) error {
	defer c.locks.acquire(userID)()

	s, err := c.readySession(ctx, userID)
	if err != nil || s == nil {
		return err
	}
	if err := c.maybeRetirePrompt(ctx, s); err != nil {
		return err
	}
	name, err := c.repo.InstitutionName(ctx, *s.InstitutionID)
	if err != nil {
		return err
	}
	_, err = c.msgr.Send(ctx, userID, fmt.Sprintf(msgCurrentInstitution, name))
	return err
}

// CurrentTopic reports the user's resolved topic.
func (c *Controller) CurrentTopic(ctx context.Context, userID int64) error {
	defer c.locks.acquire(userID)()

	s, err := c.readySession(ctx, userID)
	if err != nil || s == nil {
		return err
	}
	if err := c.maybeRetirePrompt(ctx, s); err != nil {
		return err
	}
	name, err := c.repo.TopicName(ctx, *s.TopicID)
	if err != nil {
		return err
	}
	_, err = c.msgr.Send(ctx, userID, fmt.Sprintf(msgCurrentTopic, name))
	return err
}

// readySession loads the session and enforces the ready gate shared by
// the change/current commands. A nil session with nil error means the
// gate replied and the command should stop.
func (c *Controller) readySession(ctx context.Context, userID int64) (*domain.UserSession, error) {
	if err := c.repo.EnsureSession(ctx, userID); err != nil {
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	s, err := c.repo.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.Ready {
		if _, err := c.msgr.Send(ctx, userID, msgFinishSetup); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return s, nil
}

// Broadcast sends a notice to every known user and returns how many
// deliveries succeeded. Failures are logged and skipped so one blocked
// chat cannot stall the rest.
func (c *Controller) Broadcast(ctx context.Context, text string) (int, error) {
	if text == "" {
		text = msgBroadcast
	}

	ids, err := c.repo.ListSessionUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, userID := range ids {
		if _, err := c.msgr.Send(ctx, userID, text); err != nil {
			c.logger.Warn("broadcast delivery failed", "user_id", userID, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

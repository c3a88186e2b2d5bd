package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ndmitriev/ratepulse/internal/domain"
	"github.com/ndmitriev/ratepulse/internal/menu"
	"github.com/ndmitriev/ratepulse/internal/store"
)

// Controller is the dialog state machine. It owns no data itself: it
// orchestrates the stores and the Messenger, and is stateless between
// events apart from the per-user serialization locks.
type Controller struct {
	repo   store.Repository
	msgr   Messenger
	locks  *userLocks
	logger *slog.Logger
}

// NewController creates a dialog controller.
func NewController(repo store.Repository, msgr Messenger, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		repo:   repo,
		msgr:   msgr,
		locks:  newUserLocks(),
		logger: logger,
	}
}

// OnContact handles a start/reset contact: it idempotently creates the
// session, greets the user and walks them through whichever selection
// steps are still unresolved.
func (c *Controller) OnContact(ctx context.Context, userID int64) error {
	defer c.locks.acquire(userID)()
	return c.contact(ctx, userID, true)
}

// contact runs the chaining logic shared by every handler. Callers
// must hold the user's lock.
func (c *Controller) contact(ctx context.Context, userID int64, welcome bool) error {
	if err := c.repo.EnsureSession(ctx, userID); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}

	if welcome {
		if _, err := c.msgr.Send(ctx, userID, msgWelcome); err != nil {
			return fmt.Errorf("send welcome: %w", err)
		}
	}

	s, err := c.repo.GetSession(ctx, userID)
	if err != nil {
		return err
	}

	if s.InstitutionID == nil {
		return c.promptInstitution(ctx, s, nil, false)
	}
	if welcome {
		name, err := c.repo.InstitutionName(ctx, *s.InstitutionID)
		if err != nil {
			return err
		}
		if _, err := c.msgr.Send(ctx, userID, fmt.Sprintf(msgYourInstitution, name)); err != nil {
			return fmt.Errorf("send institution notice: %w", err)
		}
	}

	if s.TopicID == nil {
		return c.promptTopic(ctx, s, nil, false)
	}
	if welcome {
		name, err := c.repo.TopicName(ctx, *s.TopicID)
		if err != nil {
			return err
		}
		if _, err := c.msgr.Send(ctx, userID, fmt.Sprintf(msgYourTopic, name)); err != nil {
			return fmt.Errorf("send topic notice: %w", err)
		}
	}

	if !s.Ready {
		ready := true
		if err := c.repo.UpdateSession(ctx, userID, domain.SessionPatch{Ready: &ready}); err != nil {
			return err
		}
	}
	// The ready confirmation fires once per transition into the ready
	// state; an explicit contact also re-presents the home controls.
	if !s.Ready || welcome {
		if err := c.msgr.ShowHome(ctx, userID, msgReady); err != nil {
			return fmt.Errorf("show home: %w", err)
		}
	}
	return nil
}

// OnText handles a free-text message: a name while a selection prompt
// is outstanding, a rating otherwise.
func (c *Controller) OnText(ctx context.Context, userID, messageID int64, text string, at time.Time) error {
	defer c.locks.acquire(userID)()

	if err := c.repo.EnsureSession(ctx, userID); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	s, err := c.repo.GetSession(ctx, userID)
	if err != nil {
		return err
	}

	switch s.Awaiting {
	case domain.AwaitInstitution:
		return c.resolveInstitutionText(ctx, s, text)
	case domain.AwaitTopic:
		return c.resolveTopicText(ctx, s, text)
	default:
		return c.handleScore(ctx, s, text, at)
	}
}

func (c *Controller) resolveInstitutionText(ctx context.Context, s *domain.UserSession, text string) error {
	// An integer here is almost certainly a rating typed mid-selection.
	if _, err := parseInt(text); err == nil {
		_, err := c.msgr.Send(ctx, s.UserID, msgMaybeScoreInstitution)
		return err
	}

	id, err := c.repo.EnsureInstitution(ctx, text)
	if err != nil {
		return err
	}
	if err := c.repo.UpdateSession(ctx, s.UserID, domain.SessionPatch{InstitutionID: &id}); err != nil {
		return err
	}
	if err := c.retirePrompt(ctx, s, false); err != nil {
		return err
	}
	if _, err := c.msgr.Send(ctx, s.UserID, fmt.Sprintf(msgConfirmFor, text)); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return c.contact(ctx, s.UserID, false)
}

func (c *Controller) resolveTopicText(ctx context.Context, s *domain.UserSession, text string) error {
	if _, err := parseInt(text); err == nil {
		_, err := c.msgr.Send(ctx, s.UserID, msgMaybeScoreTopic)
		return err
	}
	if s.InstitutionID == nil {
		return fmt.Errorf("awaiting topic without institution for user %d: %w", s.UserID, domain.ErrNotFound)
	}

	id, err := c.repo.EnsureTopic(ctx, text)
	if err != nil {
		return err
	}
	if err := c.repo.LinkTopicToInstitution(ctx, *s.InstitutionID, id); err != nil {
		return err
	}
	if err := c.repo.UpdateSession(ctx, s.UserID, domain.SessionPatch{TopicID: &id}); err != nil {
		return err
	}
	if err := c.retirePrompt(ctx, s, false); err != nil {
		return err
	}
	if _, err := c.msgr.Send(ctx, s.UserID, fmt.Sprintf(msgConfirmFor, text)); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return c.contact(ctx, s.UserID, false)
}

func (c *Controller) handleScore(ctx context.Context, s *domain.UserSession, text string, at time.Time) error {
	if s.InstitutionID == nil || s.TopicID == nil {
		if s.InstitutionID == nil {
			if _, err := c.msgr.Send(ctx, s.UserID, msgNeedInstitution); err != nil {
				return err
			}
		}
		if s.TopicID == nil {
			if _, err := c.msgr.Send(ctx, s.UserID, msgNeedTopic); err != nil {
				return err
			}
		}
		return nil
	}

	score, err := parseInt(text)
	if err != nil {
		_, err := c.msgr.Send(ctx, s.UserID, msgExpectScore)
		return err
	}
	if err := domain.ValidateScore(score); err != nil {
		_, err := c.msgr.Send(ctx, s.UserID, msgScoreRange)
		return err
	}

	institutionName, err := c.repo.InstitutionName(ctx, *s.InstitutionID)
	if err != nil {
		return err
	}
	topicName, err := c.repo.TopicName(ctx, *s.TopicID)
	if err != nil {
		return err
	}

	if err := c.repo.AppendRating(ctx, s.UserID, *s.InstitutionID, *s.TopicID, score, at); err != nil {
		return err
	}
	c.logger.Info("rating recorded",
		"user_id", s.UserID,
		"institution_id", *s.InstitutionID,
		"topic_id", *s.TopicID,
		"score", score)

	if _, err := c.msgr.Send(ctx, s.UserID, fmt.Sprintf(msgRecorded, score, topicName, institutionName)); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return nil
}

// OnSelection handles a tapped menu choice. Unrecognized payloads and
// tokens that no longer match the outstanding prompt are dropped.
func (c *Controller) OnSelection(ctx context.Context, userID int64, payload string) error {
	defer c.locks.acquire(userID)()

	if err := c.repo.EnsureSession(ctx, userID); err != nil {
		return fmt.Errorf("ensure session: %w", err)
	}
	s, err := c.repo.GetSession(ctx, userID)
	if err != nil {
		return err
	}

	tok, ok := menu.Decode(payload)
	if !ok {
		c.logger.Debug("unrecognized selection payload ignored", "user_id", userID)
		return nil
	}
	if tok.Kind.Awaiting() != s.Awaiting {
		// A tap on a menu from before the field was resolved.
		c.logger.Debug("stale selection ignored",
			"user_id", userID,
			"kind", string(tok.Kind),
			"awaiting", s.Awaiting.String())
		return nil
	}

	if tok.Cancel {
		// Revert to the previous resting state; no re-entry.
		return c.retirePrompt(ctx, s, true)
	}

	switch tok.Kind {
	case menu.KindInstitution:
		return c.resolveInstitutionSelection(ctx, s, tok.ID)
	case menu.KindTopic:
		return c.resolveTopicSelection(ctx, s, tok.ID)
	default:
		return nil
	}
}

func (c *Controller) resolveInstitutionSelection(ctx context.Context, s *domain.UserSession, id int64) error {
	name, err := c.repo.InstitutionName(ctx, id)
	if err != nil {
		return err
	}
	if err := c.repo.UpdateSession(ctx, s.UserID, domain.SessionPatch{InstitutionID: &id}); err != nil {
		return err
	}
	if err := c.retirePrompt(ctx, s, false); err != nil {
		return err
	}
	if _, err := c.msgr.Send(ctx, s.UserID, fmt.Sprintf(msgConfirmFor, name)); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}

	if s.Ready {
		// A ready user switched institutions; the topic list differs
		// per institution, so re-selection is mandatory.
		fresh, err := c.repo.GetSession(ctx, s.UserID)
		if err != nil {
			return err
		}
		return c.promptTopic(ctx, fresh, nil, false)
	}
	return c.contact(ctx, s.UserID, false)
}

func (c *Controller) resolveTopicSelection(ctx context.Context, s *domain.UserSession, id int64) error {
	name, err := c.repo.TopicName(ctx, id)
	if err != nil {
		return err
	}
	if s.InstitutionID != nil {
		if err := c.repo.LinkTopicToInstitution(ctx, *s.InstitutionID, id); err != nil {
			return err
		}
	}
	if err := c.repo.UpdateSession(ctx, s.UserID, domain.SessionPatch{TopicID: &id}); err != nil {
		return err
	}
	if err := c.retirePrompt(ctx, s, false); err != nil {
		return err
	}
	if _, err := c.msgr.Send(ctx, s.UserID, fmt.Sprintf(msgConfirmFor, name)); err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	return c.contact(ctx, s.UserID, false)
}

// promptInstitution shows the institution selection prompt and records
// the awaiting state. Any previous outstanding prompt is retired first
// so no stale menus linger in the chat.
func (c *Controller) promptInstitution(ctx context.Context, s *domain.UserSession, requestMessageID *int64, withCancel bool) error {
	if err := c.maybeRetirePrompt(ctx, s); err != nil {
		return err
	}

	entries, err := c.repo.ListInstitutions(ctx)
	if err != nil {
		return err
	}
	m := menu.Build(menu.KindInstitution, entries, withCancel)
	text := msgPickInstitution
	if m.Empty() {
		text = msgTypeInstitution
	}
	responseID, err := c.msgr.SendChoice(ctx, s.UserID, text, m)
	if err != nil {
		return fmt.Errorf("send institution prompt: %w", err)
	}
	return c.repo.SetAwaiting(ctx, s.UserID, domain.AwaitInstitution, responseID, requestMessageID)
}

// promptTopic shows the topic selection prompt scoped to the user's
// current institution.
func (c *Controller) promptTopic(ctx context.Context, s *domain.UserSession, requestMessageID *int64, withCancel bool) error {
	if s.InstitutionID == nil {
		return fmt.Errorf("topic prompt without institution for user %d: %w", s.UserID, domain.ErrNotFound)
	}
	if err := c.maybeRetirePrompt(ctx, s); err != nil {
		return err
	}

	entries, err := c.repo.ListTopicsForInstitution(ctx, *s.InstitutionID)
	if err != nil {
		return err
	}
	m := menu.Build(menu.KindTopic, entries, withCancel)
	text := msgPickTopic
	if m.Empty() {
		text = msgTypeTopic
	}
	responseID, err := c.msgr.SendChoice(ctx, s.UserID, text, m)
	if err != nil {
		return fmt.Errorf("send topic prompt: %w", err)
	}
	return c.repo.SetAwaiting(ctx, s.UserID, domain.AwaitTopic, responseID, requestMessageID)
}

// maybeRetirePrompt retires the outstanding prompt, if any, before a
// new one is issued.
func (c *Controller) maybeRetirePrompt(ctx context.Context, s *domain.UserSession) error {
	if s.Awaiting == domain.AwaitNone {
		return nil
	}
	return c.retirePrompt(ctx, s, true)
}

// retirePrompt removes the tracked prompt message (and, on
// cancellation, the user message that requested it) and clears the
// awaiting state. Message removal is best effort: transports reject
// deletes of old messages, and a leftover message must not wedge the
// state machine.
func (c *Controller) retirePrompt(ctx context.Context, s *domain.UserSession, includeRequest bool) error {
	var ids []int64
	if includeRequest && s.RequestMessageID != nil {
		ids = append(ids, *s.RequestMessageID)
	}
	if s.ResponseMessageID != nil {
		ids = append(ids, *s.ResponseMessageID)
	}
	if len(ids) > 0 {
		if err := c.msgr.Retire(ctx, s.UserID, ids...); err != nil {
			c.logger.Warn("failed to retire messages", "user_id", s.UserID, "error", err)
		}
	}
	return c.repo.ClearAwaiting(ctx, s.UserID)
}

// parseInt is the shared integer heuristic: used both for scores and
// for spotting a rating typed while a selection prompt is outstanding.
func parseInt(text string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(text))
}

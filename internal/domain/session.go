package domain

// AwaitingMode marks which selection prompt, if any, is currently
// outstanding for a user. While a prompt is outstanding free text is
// interpreted as a name, not a rating.
type AwaitingMode int

const (
	// AwaitNone means no selection prompt is outstanding.
	AwaitNone AwaitingMode = iota
	// AwaitInstitution means an institution prompt is outstanding.
	AwaitInstitution
	// AwaitTopic means a topic prompt is outstanding.
	AwaitTopic
)

func (m AwaitingMode) String() string {
	switch m {
	case AwaitInstitution:
		return "institution"
	case AwaitTopic:
		return "topic"
	default:
		return "none"
	}
}

// UserSession is the persisted per-user dialog state. One row per
// distinct user id, created on first contact and never deleted;
// cancellation resets fields, not the row.
//
// Invariant: Awaiting != AwaitNone iff a selection prompt is currently
// displayed, in which case ResponseMessageID tracks the prompt message.
type UserSession struct {
	UserID            int64
	Ready             bool
	InstitutionID     *int64
	TopicID           *int64
	ResponseMessageID *int64
	RequestMessageID  *int64
	Awaiting          AwaitingMode
}

// Resolved reports whether both institution and topic are set.
func (s *UserSession) Resolved() bool {
	return s.InstitutionID != nil && s.TopicID != nil
}

// SessionPatch is a partial update to a UserSession. Nil fields are
// left untouched.
type SessionPatch struct {
	Ready         *bool
	InstitutionID *int64
	TopicID       *int64
}

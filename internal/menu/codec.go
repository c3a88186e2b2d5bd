// Package menu builds selection menus and encodes their choice tokens.
//
// A tapped menu item comes back from the transport as an opaque string
// payload. The codec turns that payload into a typed Token, and refuses
// anything it did not produce itself, which guards the dialog engine
// against taps on stale menus from a previous session.
package menu

import (
	"strconv"
	"strings"

	"github.com/ndmitriev/ratepulse/internal/domain"
)

// Kind says which reference entity a menu offers.
type Kind string

const (
	// KindInstitution marks institution menus.
	KindInstitution Kind = "inst"
	// KindTopic marks topic menus.
	KindTopic Kind = "topic"
)

const cancelWord = "cancel"

// Valid reports whether the kind is one of the closed set.
func (k Kind) Valid() bool {
	return k == KindInstitution || k == KindTopic
}

// Awaiting maps the kind to the awaiting mode its prompt establishes.
func (k Kind) Awaiting() domain.AwaitingMode {
	switch k {
	case KindInstitution:
		return domain.AwaitInstitution
	case KindTopic:
		return domain.AwaitTopic
	default:
		return domain.AwaitNone
	}
}

// Token is one decoded menu choice: either a concrete id or the cancel
// sentinel, always tagged with its kind.
type Token struct {
	Kind   Kind
	ID     int64
	Cancel bool
}

// Encode renders the token as its wire payload.
func (t Token) Encode() string {
	if t.Cancel {
		return string(t.Kind) + ":" + cancelWord
	}
	return string(t.Kind) + ":" + strconv.FormatInt(t.ID, 10)
}

// Decode parses a wire payload back into a Token. It is the exact
// inverse of Encode and fails closed: ok is false for any payload this
// codec did not produce.
func Decode(payload string) (Token, bool) {
	kind, rest, found := strings.Cut(payload, ":")
	if !found || rest == "" {
		return Token{}, false
	}

	k := Kind(kind)
	if !k.Valid() {
		return Token{}, false
	}

	if rest == cancelWord {
		return Token{Kind: k, Cancel: true}, true
	}

	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return Token{}, false
	}
	return Token{Kind: k, ID: id}, true
}

// Item is one rendered menu row.
type Item struct {
	Label   string
	Payload string
}

// Menu is the ordered list of choices shown to the user.
type Menu struct {
	Items []Item
}

// Empty reports whether the menu offers no choices beyond cancel.
func (m Menu) Empty() bool {
	for _, item := range m.Items {
		if t, ok := Decode(item.Payload); ok && !t.Cancel {
			return false
		}
	}
	return true
}

// Build renders reference entries into a menu of the given kind. When
// withCancel is set a cancel row is placed first, matching the prompt
// layout users see during re-selection.
func Build(kind Kind, entries []domain.RefEntry, withCancel bool) Menu {
	var items []Item
	if withCancel {
		items = append(items, Item{
			Label:   "Cancel",
			Payload: Token{Kind: kind, Cancel: true}.Encode(),
		})
	}
	for _, e := range entries {
		items = append(items, Item{
			Label:   e.Name,
			Payload: Token{Kind: kind, ID: e.ID}.Encode(),
		})
	}
	return Menu{Items: items}
}

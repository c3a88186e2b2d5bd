package domain

import (
	"fmt"
	"time"
)

// Score bounds, inclusive.
const (
	ScoreMin = 0
	ScoreMax = 10
)

// Rating is one recorded submission. Institution and topic ids are
// snapshots taken at submission time; changing a user's selection later
// never alters past ratings. Rows are append-only.
type Rating struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	InstitutionID int64     `json:"institution_id"`
	TopicID       int64     `json:"topic_id"`
	Score         int       `json:"score"`
	CreatedAt     time.Time `json:"created_at"`
}

// ValidateScore checks the inclusive [ScoreMin, ScoreMax] range.
func ValidateScore(score int) error {
	if score < ScoreMin || score > ScoreMax {
		return fmt.Errorf("score %d out of range [%d, %d]", score, ScoreMin, ScoreMax)
	}
	return nil
}

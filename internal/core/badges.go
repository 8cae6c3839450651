package core

import "time"

// Badge codes. Evaluation lives in the goal service; these are the stable
// identifiers stored in earned-badge rows.
const (
	BadgeFirstGoal         = "first_goal"
	BadgeGoalAchieved      = "goal_achieved"
	BadgeFiveContributions = "five_contributions"
	BadgeSuperSaver        = "super_saver"
	BadgeOnARoll           = "on_a_roll"
)

// EarnedBadge is a persisted achievement row. Badges are derived state: only
// the earned rows are stored, never the counters behind them.
type EarnedBadge struct {
	OrganizationID int64
	Code           string
	EarnedAt       time.Time
}

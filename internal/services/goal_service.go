package services

import (
	"context"
	"log/slog"
	"time"

	"divvy/internal/core"
	"divvy/internal/storage"
)

// superSaverCents is the cumulative contribution total that earns the
// super_saver badge.
const superSaverCents = 100000

// GoalService manages savings goals, contributions, and badge awards. Badge
// state is derived: DeservedBadges recomputes the full set from goals and
// contributions, and the service persists only the codes not yet earned.
type GoalService struct {
	store storage.Store
	now   func() time.Time
}

func NewGoalService(store storage.Store) *GoalService {
	return &GoalService{store: store, now: time.Now}
}

func (s *GoalService) Create(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, err
	}
	g.Status = core.GoalActive
	g.Current = core.Money{}
	created, err := s.store.CreateGoal(ctx, g)
	if err != nil {
		return core.Goal{}, err
	}
	s.awardBadges(ctx, g.OrganizationID)
	return created, nil
}

// Contribute records a contribution, advances the goal, and awards any newly
// deserved badges.
func (s *GoalService) Contribute(ctx context.Context, orgID, goalID int64, amount core.Money) (core.Goal, error) {
	if err := amount.Validate(); err != nil {
		return core.Goal{}, err
	}
	goal, err := s.store.AddContribution(ctx, orgID, core.Contribution{
		GoalID: goalID,
		Amount: amount,
		Date:   core.TruncateDay(s.now()),
	})
	if err != nil {
		return core.Goal{}, err
	}
	s.awardBadges(ctx, orgID)
	return goal, nil
}

// DeservedBadges computes the badge codes an organization has earned from
// its goals and contributions. Pure function; the caller diffs against the
// stored set.
func DeservedBadges(goals []core.Goal, contribs []core.Contribution) []string {
	var codes []string
	if len(goals) > 0 {
		codes = append(codes, core.BadgeFirstGoal)
	}

	achieved := 0
	for _, g := range goals {
		if g.Status == core.GoalAchieved {
			achieved++
		}
	}
	if achieved >= 1 {
		codes = append(codes, core.BadgeGoalAchieved)
	}
	if achieved >= 3 {
		codes = append(codes, core.BadgeOnARoll)
	}

	if len(contribs) >= 5 {
		codes = append(codes, core.BadgeFiveContributions)
	}
	var contributed int64
	for _, c := range contribs {
		contributed += c.Amount.Cents
	}
	if contributed >= superSaverCents {
		codes = append(codes, core.BadgeSuperSaver)
	}
	return codes
}

// awardBadges persists newly deserved badges. Failures are logged, never
// surfaced; badges must not break the write that triggered them.
func (s *GoalService) awardBadges(ctx context.Context, orgID int64) {
	goals, err := s.store.ListGoals(ctx, orgID)
	if err != nil {
		slog.ErrorContext(ctx, "badge evaluation: list goals", "error", err, "org_id", orgID)
		return
	}
	contribs, err := s.store.ListContributions(ctx, orgID)
	if err != nil {
		slog.ErrorContext(ctx, "badge evaluation: list contributions", "error", err, "org_id", orgID)
		return
	}
	earned, err := s.store.ListEarnedBadges(ctx, orgID)
	if err != nil {
		slog.ErrorContext(ctx, "badge evaluation: list earned", "error", err, "org_id", orgID)
		return
	}

	have := make(map[string]bool, len(earned))
	for _, b := range earned {
		have[b.Code] = true
	}
	for _, code := range DeservedBadges(goals, contribs) {
		if have[code] {
			continue
		}
		badge := core.EarnedBadge{OrganizationID: orgID, Code: code, EarnedAt: s.now()}
		if err := s.store.SaveEarnedBadge(ctx, badge); err != nil {
			slog.ErrorContext(ctx, "failed to save badge", "error", err, "code", code, "org_id", orgID)
			continue
		}
		slog.InfoContext(ctx, "badge earned", "code", code, "org_id", orgID)
	}
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BudgetSuite struct {
	suite.Suite
	budget *Budget
	now    time.Time
}

func TestBudgetSuite(t *testing.T) {
	suite.Run(t, new(BudgetSuite))
}

func (s *BudgetSuite) SetupTest() {
	s.budget = NewBudget(5, 5*time.Second, time.Hour)
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func (s *BudgetSuite) TestChargeCountsTowardCeiling() {
	for i := 1; i <= 5; i++ {
		s.False(s.budget.Exhausted(s.now))
		s.Equal(i, s.budget.Charge(s.now))
		s.now = s.now.Add(10 * time.Second)
	}
	s.True(s.budget.Exhausted(s.now))
	s.Equal(0, s.budget.Remaining(s.now))
}

func (s *BudgetSuite) TestCooldownWindow() {
	s.budget.Charge(s.now)

	s.Run("inside the window", func() {
		left, active := s.budget.InCooldown(s.now.Add(2 * time.Second))
		s.True(active)
		s.Equal(3*time.Second, left)
	})

	s.Run("after the window", func() {
		_, active := s.budget.InCooldown(s.now.Add(6 * time.Second))
		s.False(active)
	})

	s.Run("untouched budget has no cooldown", func() {
		fresh := NewBudget(5, 5*time.Second, time.Hour)
		_, active := fresh.InCooldown(s.now)
		s.False(active)
	})
}

func (s *BudgetSuite) TestInactivityResetsTheCounter() {
	for i := 0; i < 5; i++ {
		s.budget.Charge(s.now)
	}
	s.True(s.budget.Exhausted(s.now))

	s.Run("just under the reset window stays locked", func() {
		s.True(s.budget.Exhausted(s.now.Add(59 * time.Minute)))
	})

	s.Run("a full hour of inactivity unlocks", func() {
		later := s.now.Add(time.Hour)
		s.False(s.budget.Exhausted(later))
		s.Equal(0, s.budget.Attempts(later))
		s.Equal(1, s.budget.Charge(later))
	})
}

func (s *BudgetSuite) TestRestoreSeedsFromSnapshot() {
	s.budget.Restore(3, s.now.Add(-time.Minute))
	s.Equal(3, s.budget.Attempts(s.now))
	s.Equal(2, s.budget.Remaining(s.now))

	s.Run("stale snapshot resets on first read", func() {
		stale := NewBudget(5, 5*time.Second, time.Hour)
		stale.Restore(4, s.now.Add(-2*time.Hour))
		s.Equal(0, stale.Attempts(s.now))
	})
}

func (s *BudgetSuite) TestResetClearsEverything() {
	s.budget.Charge(s.now)
	s.budget.Reset()
	s.Equal(0, s.budget.Attempts(s.now))
	_, active := s.budget.InCooldown(s.now)
	s.False(active)
}

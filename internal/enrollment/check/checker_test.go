package check

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/remote"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
)

// failingClient wraps the mock to make the read endpoints fail, which the
// mock itself does not support.
type failingClient struct {
	*remote.MockClient
	checkCalls int
	chitCalls  int
}

func (f *failingClient) CheckUser(_ context.Context, _ string) (bool, error) {
	f.checkCalls++
	return false, dErrors.New(dErrors.CodeUnavailable, "service unavailable")
}

func (f *failingClient) ChitUser(_ context.Context, _, _ string) (remote.ChitStatus, error) {
	f.chitCalls++
	return remote.ChitStatus{}, dErrors.New(dErrors.CodeUnavailable, "service unavailable")
}

type CheckerSuite struct {
	suite.Suite
	client  *remote.MockClient
	checker *Checker
	ctx     context.Context
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) SetupTest() {
	s.client = remote.NewMockClient()
	s.checker = New(s.client)
	s.ctx = context.Background()
}

func (s *CheckerSuite) TestClearMobileProducesNoFlags() {
	state := s.checker.Evaluate(s.ctx, "9876543210", "myself")
	s.False(state.MobileExists)
	s.False(state.PendingStatus)
	s.False(state.Blocked())
	s.Equal(1, s.client.CheckUserCalls)
	s.Equal(1, s.client.ChitUserCalls)
}

func (s *CheckerSuite) TestActiveChitBlocks() {
	s.client.ChitStatuses["9876543210/myself"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusActive}

	state := s.checker.Evaluate(s.ctx, "9876543210", "myself")
	s.True(state.MobileExists)
	s.False(state.PendingStatus)
	s.True(state.Blocked())
}

func (s *CheckerSuite) TestPendingChitWarnsWithoutBlocking() {
	s.client.ChitStatuses["9876543210/spouse"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusPending}

	state := s.checker.Evaluate(s.ctx, "9876543210", "Spouse")
	s.True(state.MobileExists)
	s.True(state.PendingStatus)
	s.False(state.Blocked())
}

func (s *CheckerSuite) TestExistingUserWithoutChitDoesNotBlock() {
	s.client.ExistingUsers["9876543210"] = true

	state := s.checker.Evaluate(s.ctx, "9876543210", "myself")
	s.False(state.MobileExists)
	s.False(state.Blocked())
}

func (s *CheckerSuite) TestIdenticalPairQueriedAtMostOnce() {
	for i := 0; i < 3; i++ {
		s.checker.Evaluate(s.ctx, "9876543210", "myself")
	}
	s.Equal(1, s.client.CheckUserCalls)
	s.Equal(1, s.client.ChitUserCalls)
}

func (s *CheckerSuite) TestChangedPairTriggersFreshLookup() {
	s.checker.Evaluate(s.ctx, "9876543210", "myself")
	s.checker.Evaluate(s.ctx, "9876543210", "spouse")
	s.checker.Evaluate(s.ctx, "9123456789", "spouse")
	s.Equal(3, s.client.CheckUserCalls)
}

func (s *CheckerSuite) TestGuardianRelationshipsSkipLookup() {
	s.client.ChitStatuses["9876543210/son"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusActive}

	for _, rel := range []string{"son", "Daughter"} {
		state := s.checker.Evaluate(s.ctx, "9876543210", rel)
		s.False(state.Blocked())
	}
	s.Zero(s.client.CheckUserCalls)
	s.Zero(s.client.ChitUserCalls)
}

func (s *CheckerSuite) TestIncompleteMobileSkipsLookup() {
	s.checker.Evaluate(s.ctx, "98765", "myself")
	s.Zero(s.client.CheckUserCalls)
}

func (s *CheckerSuite) TestFailureFailsOpenAndForgetsPair() {
	failing := &failingClient{MockClient: s.client}
	checker := New(failing)

	state := checker.Evaluate(s.ctx, "9876543210", "myself")
	s.False(state.Blocked())
	s.Empty(checker.State().LastMobile)

	// The pair was not remembered, so a retry queries again.
	checker.Evaluate(s.ctx, "9876543210", "myself")
	s.Equal(2, failing.checkCalls)
}

func (s *CheckerSuite) TestEvaluateClearsStaleFlagsOnSkip() {
	s.client.ChitStatuses["9876543210/myself"] = remote.ChitStatus{Exists: true, Status: remote.ChitStatusActive}
	s.True(s.checker.Evaluate(s.ctx, "9876543210", "myself").Blocked())

	// Editing the mobile down to a partial value clears the block.
	state := s.checker.Evaluate(s.ctx, "987654321", "myself")
	s.False(state.Blocked())
}

func (s *CheckerSuite) TestRestoreSuppressesRequery() {
	s.checker.Restore(models.CheckState{
		LastMobile:       "9876543210",
		LastRelationship: "myself",
		MobileExists:     true,
	})

	state := s.checker.Evaluate(s.ctx, "9876543210", "myself")
	s.True(state.Blocked())
	s.Zero(s.client.CheckUserCalls)
}

func (s *CheckerSuite) TestPrefillMapsProfileFields() {
	s.client.Profiles["9876543210"] = &remote.CustomerProfile{
		Status: remote.ChitStatusActive,
		Fields: map[string]string{
			"customerName": "Lakshmi",
			"doorNo":       "7",
			"street":       "Mill Road",
			"bogusKey":     "ignored",
		},
	}

	record := s.checker.Prefill(s.ctx, "9876543210")
	s.Require().NotNil(record)
	s.Equal("Lakshmi", record.CustomerName)
	s.Equal("Mill Road", record.Street)
}

func (s *CheckerSuite) TestPrefillUnknownMobileReturnsNil() {
	s.Nil(s.checker.Prefill(s.ctx, "9876543210"))
	s.Nil(s.checker.Prefill(s.ctx, "98765"))
	s.Equal(1, s.client.CustomerCalls)
}

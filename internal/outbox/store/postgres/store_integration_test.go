//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"casework/internal/outbox"
	platformpg "casework/internal/platform/postgres"
	"casework/pkg/domain"
	"casework/pkg/testutil/containers"
)

type OutboxStoreSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	store *Store
}

func TestOutboxStoreSuite(t *testing.T) {
	suite.Run(t, new(OutboxStoreSuite))
}

func (s *OutboxStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = New(s.pg.DB)
}

func (s *OutboxStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "outbox"))
}

func (s *OutboxStoreSuite) makeEvent(eventType string, occurredAt time.Time) outbox.Event {
	return outbox.Event{
		ID:            domain.NewEventID(),
		AggregateID:   "agg-1",
		AggregateType: "risk_assessment",
		EventType:     eventType,
		Payload:       []byte(`{"k":"v"}`),
		OccurredAt:    occurredAt,
	}
}

func (s *OutboxStoreSuite) TestAppendAndClaim() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	second := s.makeEvent("b", base.Add(time.Second))
	first := s.makeEvent("a", base)
	s.Require().NoError(s.store.Append(s.ctx, second, first))

	pending, err := s.store.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, pending)

	var claimed []outbox.Event
	n, err := s.store.ClaimAndProcess(s.ctx, 10, func(_ context.Context, events []outbox.Event) error {
		claimed = events
		return nil
	})
	s.Require().NoError(err)
	s.Equal(2, n)
	s.Require().Len(claimed, 2)
	s.Equal(first.ID, claimed[0].ID, "oldest first")
	s.Equal(second.ID, claimed[1].ID)

	pending, err = s.store.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending)
}

func (s *OutboxStoreSuite) TestFailedProcessLeavesRowsPending() {
	s.Require().NoError(s.store.Append(s.ctx, s.makeEvent("a", time.Now().UTC())))

	_, err := s.store.ClaimAndProcess(s.ctx, 10, func(context.Context, []outbox.Event) error {
		return errors.New("broker unavailable")
	})
	s.Require().Error(err)

	pending, err := s.store.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)

	n, err := s.store.ClaimAndProcess(s.ctx, 10, func(context.Context, []outbox.Event) error {
		return nil
	})
	s.Require().NoError(err)
	s.Equal(1, n, "row stays claimable after the failure")
}

func (s *OutboxStoreSuite) TestConcurrentClaimsAreDisjoint() {
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < 4; i++ {
		s.Require().NoError(s.store.Append(s.ctx, s.makeEvent("a", base.Add(time.Duration(i)*time.Second))))
	}

	release := make(chan struct{})
	firstClaimed := make(chan []outbox.Event, 1)

	go func() {
		_, _ = s.store.ClaimAndProcess(s.ctx, 2, func(_ context.Context, events []outbox.Event) error {
			firstClaimed <- events
			<-release
			return nil
		})
	}()

	var held []outbox.Event
	select {
	case held = <-firstClaimed:
	case <-time.After(5 * time.Second):
		s.FailNow("first claim never ran")
	}

	// While the first claim holds its rows, a second relay instance skips
	// them and claims the rest.
	var other []outbox.Event
	n, err := s.store.ClaimAndProcess(s.ctx, 10, func(_ context.Context, events []outbox.Event) error {
		other = events
		return nil
	})
	close(release)
	s.Require().NoError(err)
	s.Equal(2, n)

	heldIDs := map[domain.EventID]bool{}
	for _, e := range held {
		heldIDs[e.ID] = true
	}
	for _, e := range other {
		s.False(heldIDs[e.ID], "claims must not overlap")
	}
}

func (s *OutboxStoreSuite) TestAppendJoinsCallerTransaction() {
	runner := platformpg.NewTxRunner(s.pg.DB)
	boom := errors.New("aggregate write failed")

	err := runner.RunInTx(s.ctx, func(txCtx context.Context) error {
		if err := s.store.Append(txCtx, s.makeEvent("a", time.Now().UTC())); err != nil {
			return err
		}
		return boom
	})
	s.Require().ErrorIs(err, boom)

	pending, err := s.store.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Zero(pending, "rolled back rows never reach the relay")

	err = runner.RunInTx(s.ctx, func(txCtx context.Context) error {
		return s.store.Append(txCtx, s.makeEvent("b", time.Now().UTC()))
	})
	s.Require().NoError(err)

	pending, err = s.store.PendingCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, pending)
}

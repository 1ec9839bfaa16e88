//go:build integration

package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"casework/internal/outbox"
	"casework/pkg/testutil/containers"
)

type AuditSuite struct {
	suite.Suite
	ctx   context.Context
	pg    *containers.PostgresContainer
	redis *containers.RedisContainer
}

func TestAuditSuite(t *testing.T) {
	suite.Run(t, new(AuditSuite))
}

func (s *AuditSuite) SetupSuite() {
	s.ctx = context.Background()
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.redis = containers.GetManager().GetRedis(s.T())
}

func (s *AuditSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(s.ctx, "audit_log"))
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *AuditSuite) makeEnvelope() outbox.Envelope {
	return outbox.Envelope{
		ID:            uuid.NewString(),
		AggregateID:   "agg-1",
		AggregateType: "risk_assessment",
		EventType:     "risk_assessment.completed",
		Payload:       json.RawMessage(`{"case_id":"C-100"}`),
		OccurredAt:    time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *AuditSuite) TestRedisGuardClaimsOnce() {
	guard := NewRedisGuard(s.redis.Client)
	eventID := uuid.NewString()

	first, err := guard.FirstSeen(s.ctx, eventID)
	s.Require().NoError(err)
	s.True(first)

	second, err := guard.FirstSeen(s.ctx, eventID)
	s.Require().NoError(err)
	s.False(second, "redelivery of the same event id is not first-seen")

	other, err := guard.FirstSeen(s.ctx, uuid.NewString())
	s.Require().NoError(err)
	s.True(other)
}

func (s *AuditSuite) TestRedisGuardReleaseReopensClaim() {
	guard := NewRedisGuard(s.redis.Client)
	eventID := uuid.NewString()

	first, err := guard.FirstSeen(s.ctx, eventID)
	s.Require().NoError(err)
	s.True(first)

	s.Require().NoError(guard.Release(s.ctx, eventID))

	again, err := guard.FirstSeen(s.ctx, eventID)
	s.Require().NoError(err)
	s.True(again, "a released claim is first-seen on redelivery")
}

func (s *AuditSuite) TestRecordIsIdempotent() {
	store := NewPostgresStore(s.pg.DB)
	env := s.makeEnvelope()

	s.Require().NoError(store.Record(s.ctx, env))
	s.Require().NoError(store.Record(s.ctx, env), "duplicate delivery is absorbed")

	var count int
	err := s.pg.DB.QueryRowContext(s.ctx,
		`SELECT count(*) FROM audit_log WHERE event_id = $1`, env.ID,
	).Scan(&count)
	s.Require().NoError(err)
	s.Equal(1, count)

	var eventType string
	var payload []byte
	err = s.pg.DB.QueryRowContext(s.ctx,
		`SELECT event_type, payload FROM audit_log WHERE event_id = $1`, env.ID,
	).Scan(&eventType, &payload)
	s.Require().NoError(err)
	s.Equal(env.EventType, eventType)
	s.JSONEq(string(env.Payload), string(payload))
}

func (s *AuditSuite) TestRecordRejectsMalformedID() {
	store := NewPostgresStore(s.pg.DB)
	env := s.makeEnvelope()
	env.ID = "not-a-uuid"
	s.Error(store.Record(s.ctx, env))
}

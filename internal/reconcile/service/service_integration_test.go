//go:build integration

package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	credential "credsync/internal/credential/models"
	"credsync/internal/credential/store"
	"credsync/internal/reconcile/adapters"
	adaptermocks "credsync/internal/reconcile/adapters/mocks"
	"credsync/internal/reconcile/checkpoint"
	"credsync/internal/reconcile/processlog"
	"credsync/pkg/platform/sealer"
	txcontext "credsync/pkg/platform/tx"
	"credsync/pkg/testutil/containers"
)

// PostgresCycleSuite runs a full cycle against the Postgres stores with the
// record write and its log entry committed in one transaction.
type PostgresCycleSuite struct {
	suite.Suite
	postgres    *containers.PostgresContainer
	ctrl        *gomock.Controller
	adapter     *adaptermocks.MockAdapter
	checkpoints *checkpoint.PostgresStore
	records     *store.PostgresStore
	log         *processlog.PostgresStore
	feed        *stubFeed
}

func TestPostgresCycleSuite(t *testing.T) {
	suite.Run(t, new(PostgresCycleSuite))
}

func (s *PostgresCycleSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	sl, err := sealer.New(bytes.Repeat([]byte{7}, 32))
	s.Require().NoError(err)
	s.checkpoints = checkpoint.NewPostgres(s.postgres.DB)
	s.records = store.NewPostgres(s.postgres.DB, sl)
	s.log = processlog.NewPostgres(s.postgres.DB)
}

func (s *PostgresCycleSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
	s.ctrl = gomock.NewController(s.T())
	s.adapter = adaptermocks.NewMockAdapter(s.ctrl)
	s.adapter.EXPECT().Issuer().Return("acme").AnyTimes()
	s.feed = &stubFeed{}
}

func (s *PostgresCycleSuite) reconciler() *Reconciler {
	registry, err := adapters.NewRegistry(s.adapter)
	s.Require().NoError(err)
	cfg := DefaultConfig()
	cfg.JobName = testJob
	cfg.Lookback = testLookback
	r, err := New(s.checkpoints, s.feed, s.records, s.log, registry,
		WithConfig(cfg),
		WithClock(func() time.Time { return testNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithTxRunner(txcontext.NewSQLRunner(s.postgres.DB)),
	)
	s.Require().NoError(err)
	return r
}

func (s *PostgresCycleSuite) seed(recordID string, status credential.Status) {
	rec, err := credential.NewCredentialRecord(
		credential.DocumentID(uuid.New()),
		credential.OwnerID(uuid.New()),
		"acme",
		credential.RecordID(recordID),
		t0.Add(-24*time.Hour),
	)
	s.Require().NoError(err)
	rec.Status = status
	rec.Payload = []byte(`{"stale":true}`)
	s.Require().NoError(s.records.Create(context.Background(), rec))
}

func (s *PostgresCycleSuite) TestEndToEndScenario() {
	ctx := context.Background()
	_, err := s.checkpoints.GetOrCreate(ctx, testJob, t0)
	s.Require().NoError(err)
	s.seed("R1", credential.StatusUnpublished)
	s.seed("R2", credential.StatusIssued)
	s.feed.batch = events("record_anchored", "R1", "record_deleted", "R2", "record_anchored", "R3")

	payload := adapters.Payload(`{"id":"R1","holder":"jane"}`)
	s.adapter.EXPECT().FetchAuthoritativeData(gomock.Any(), credential.RecordID("R1")).Return(payload, nil)
	s.adapter.EXPECT().Verify(gomock.Any(), payload).Return(adapters.VerifyResult{Success: true}, nil)

	report, err := s.reconciler().RunCycle(ctx)
	s.Require().NoError(err)
	s.Equal(2, report.Succeeded)
	s.True(report.Advanced)
	s.Equal(testWindow, s.feed.windows[0])

	r1, err := s.records.FindByRecordID(ctx, "R1")
	s.Require().NoError(err)
	s.Equal(credential.StatusIssued, r1.Status)
	s.Equal(credential.VerificationPassed, r1.Verified)
	s.Equal([]byte(payload), r1.Payload)

	var raw []byte
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT payload FROM credential_documents WHERE record_id = 'R1'`).Scan(&raw))
	s.NotEqual([]byte(payload), raw, "payload is sealed at rest")

	r2, err := s.records.FindByRecordID(ctx, "R2")
	s.Require().NoError(err)
	s.Equal(credential.StatusDeleted, r2.Status)
	s.Empty(r2.Payload)
	s.Nil(r2.VerifiedAt)

	for _, id := range []credential.RecordID{"R1", "R2"} {
		ok, err := s.log.HasSuccess(ctx, id, testWindow)
		s.Require().NoError(err)
		s.True(ok, "success entry for %s", id)
	}
	entries, err := s.log.ListByRecord(ctx, "R3")
	s.Require().NoError(err)
	s.Empty(entries)

	state, err := s.checkpoints.Get(ctx, testJob)
	s.Require().NoError(err)
	s.True(testWindow.To.Equal(state.LastProcessedTo))
}

func (s *PostgresCycleSuite) TestRerunSkipsProcessedRecords() {
	ctx := context.Background()
	_, err := s.checkpoints.GetOrCreate(ctx, testJob, t0)
	s.Require().NoError(err)
	s.seed("R2", credential.StatusIssued)
	s.feed.batch = events("record_deleted", "R2")

	_, err = s.reconciler().RunCycle(ctx)
	s.Require().NoError(err)

	// Simulate a crash before the checkpoint moved: replay the same window.
	_, err = s.postgres.DB.ExecContext(ctx, `UPDATE sync_checkpoints SET last_processed_to = $1`, t0)
	s.Require().NoError(err)
	report, err := s.reconciler().RunCycle(ctx)
	s.Require().NoError(err)
	s.Equal(1, report.Skipped)

	entries, err := s.log.ListByRecord(ctx, "R2")
	s.Require().NoError(err)
	s.Len(entries, 1)
}

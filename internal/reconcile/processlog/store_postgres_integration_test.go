//go:build integration

package processlog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	credential "credsync/internal/credential/models"
	"credsync/internal/reconcile/models"
	"credsync/internal/reconcile/processlog"
	txcontext "credsync/pkg/platform/tx"
	"credsync/pkg/testutil/containers"
)

type PostgresLogSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *processlog.PostgresStore
	window   models.Window
}

func TestPostgresLogSuite(t *testing.T) {
	suite.Run(t, new(PostgresLogSuite))
}

func (s *PostgresLogSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = processlog.NewPostgres(s.postgres.DB)
	from := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	s.window = models.Window{From: from, To: from.Add(3 * time.Hour)}
}

func (s *PostgresLogSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func (s *PostgresLogSuite) TestHasSuccessPerWindow() {
	ctx := context.Background()
	now := s.window.To.Add(time.Minute)
	s.Require().NoError(s.store.Append(ctx, processlog.Success("R1", "record_anchored", s.window, now)))
	s.Require().NoError(s.store.Append(ctx, processlog.Failure("R2", "record_anchored", errors.New("boom"), s.window, now)))

	ok, err := s.store.HasSuccess(ctx, "R1", s.window)
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.store.HasSuccess(ctx, "R2", s.window)
	s.Require().NoError(err)
	s.False(ok, "a failed entry does not count as processed")

	next := models.Window{From: s.window.To, To: s.window.To.Add(time.Hour)}
	ok, err = s.store.HasSuccess(ctx, "R1", next)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *PostgresLogSuite) TestListFailed() {
	ctx := context.Background()
	now := s.window.To.Add(time.Minute)
	s.Require().NoError(s.store.Append(ctx, processlog.Failure("R1", "record_revoked", errors.New("timeout"), s.window, now)))
	s.Require().NoError(s.store.Append(ctx, processlog.Failure("R2", "record_revoked", errors.New("not found"), s.window, now.Add(time.Second))))
	s.Require().NoError(s.store.Append(ctx, processlog.Success("R3", "record_revoked", s.window, now)))

	entries, err := s.store.ListFailed(ctx, s.window)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(credential.RecordID("R2"), entries[0].RecordID)
	s.Equal("not found", entries[0].ErrorMessage)

	entries, err = s.store.ListByRecord(ctx, "R3")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(processlog.OutcomeSuccess, entries[0].Outcome)
}

func (s *PostgresLogSuite) TestAppendRollsBackWithTransaction() {
	ctx := context.Background()
	runner := txcontext.NewSQLRunner(s.postgres.DB)

	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Append(ctx, processlog.Success("R9", "record_anchored", s.window, s.window.To)); err != nil {
			return err
		}
		return errors.New("record write failed")
	})
	s.Require().Error(err)

	ok, err := s.store.HasSuccess(ctx, "R9", s.window)
	s.Require().NoError(err)
	s.False(ok)
}

package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemoryStore()
}

func (s *InMemoryStoreSuite) TestGetOrCreate() {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	s.Run("missing job returns not found from Get", func() {
		_, err := s.store.Get(ctx, "job")
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("first call creates at initial watermark", func() {
		state, err := s.store.GetOrCreate(ctx, "job", t0)
		s.Require().NoError(err)
		s.Equal(t0, state.LastProcessedTo)
	})

	s.Run("second call keeps existing watermark", func() {
		state, err := s.store.GetOrCreate(ctx, "job", t0.Add(time.Hour))
		s.Require().NoError(err)
		s.Equal(t0, state.LastProcessedTo)
	})
}

func (s *InMemoryStoreSuite) TestAdvance() {
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	s.Run("unknown job returns not found", func() {
		_, err := s.store.Advance(ctx, "ghost", t0)
		s.ErrorIs(err, ErrNotFound)
	})

	s.Run("moves forward", func() {
		_, err := s.store.GetOrCreate(ctx, "job", t0)
		s.Require().NoError(err)

		state, err := s.store.Advance(ctx, "job", t0.Add(3*time.Hour))
		s.Require().NoError(err)
		s.Equal(t0.Add(3*time.Hour), state.LastProcessedTo)
	})

	s.Run("never moves backward", func() {
		state, err := s.store.Advance(ctx, "job", t0.Add(time.Hour))
		s.Require().NoError(err)
		s.Equal(t0.Add(3*time.Hour), state.LastProcessedTo)
	})
}

//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"bordereau/internal/bsd/store"
	id "bordereau/pkg/domain"
	"bordereau/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *store.RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.locker = store.NewRedisLocker(s.redis.Client)
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

// TestMutualExclusion verifies that concurrent holders of the same document
// lock never overlap.
func (s *RedisLockerSuite) TestMutualExclusion() {
	ctx := context.Background()
	docID := id.NewDocumentID()
	const goroutines = 10

	var inside atomic.Int32
	var overlaps atomic.Int32
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.locker.WithLock(ctx, docID, func(context.Context) error {
				if inside.Add(1) > 1 {
					overlaps.Add(1)
				}
				counter++
				time.Sleep(10 * time.Millisecond)
				inside.Add(-1)
				return nil
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Equal(int32(0), overlaps.Load(), "critical sections should never overlap")
	s.Equal(goroutines, counter)
}

// TestIndependentDocuments verifies that locks on different documents do not
// contend with each other.
func (s *RedisLockerSuite) TestIndependentDocuments() {
	ctx := context.Background()

	first := id.NewDocumentID()
	second := id.NewDocumentID()

	release := make(chan struct{})
	held := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := s.locker.WithLock(ctx, first, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
		s.NoError(err)
	}()

	<-held
	// The second document stays lockable while the first is held.
	start := time.Now()
	err := s.locker.WithLock(ctx, second, func(context.Context) error { return nil })
	s.Require().NoError(err)
	s.Less(time.Since(start), 2*time.Second)

	close(release)
	wg.Wait()
}

// TestLockReleasedAfterError verifies the lease is released even when the
// protected operation fails.
func (s *RedisLockerSuite) TestLockReleasedAfterError() {
	ctx := context.Background()
	docID := id.NewDocumentID()

	failure := context.DeadlineExceeded
	err := s.locker.WithLock(ctx, docID, func(context.Context) error { return failure })
	s.Require().ErrorIs(err, failure)

	// Reacquiring must not wait for the lease to expire.
	start := time.Now()
	err = s.locker.WithLock(ctx, docID, func(context.Context) error { return nil })
	s.Require().NoError(err)
	s.Less(time.Since(start), 2*time.Second)
}

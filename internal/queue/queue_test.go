package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type QueueTestSuite struct {
	suite.Suite
	logger *logrus.Logger
}

func (s *QueueTestSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.PanicLevel)
}

func (s *QueueTestSuite) newQueue(capacity uint32) *Queue[int] {
	q, err := New[int]("test", capacity, s.logger)
	s.Require().NoError(err)
	return q
}

func (s *QueueTestSuite) TestDrainIsFIFO() {
	q := s.newQueue(64)
	for i := 0; i < 10; i++ {
		s.True(q.Push(i))
	}

	var got []int
	n := q.Drain(func(v int) { got = append(got, v) })

	s.Equal(10, n)
	s.Equal([]int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
	s.Equal(0, q.Len())
	s.Equal(int64(10), q.Metrics().Drained)
}

func (s *QueueTestSuite) TestPushDuringDrainWaitsForNextCycle() {
	q := s.newQueue(64)
	q.Push(1)
	q.Push(2)

	var got []int
	q.Drain(func(v int) {
		got = append(got, v)
		q.Push(v * 10)
	})
	s.Equal([]int{1, 2}, got)

	got = nil
	q.Drain(func(v int) { got = append(got, v) })
	s.Equal([]int{10, 20}, got)
}

func (s *QueueTestSuite) TestReadySignalIsCoalesced() {
	q := s.newQueue(64)
	q.Push(1)
	q.Push(2)

	select {
	case <-q.Ready():
	default:
		s.Fail("expected ready signal")
	}

	select {
	case <-q.Ready():
		s.Fail("ready signal should be coalesced")
	default:
	}
}

func (s *QueueTestSuite) TestOverflowDropsNewest() {
	q := s.newQueue(4)
	s.Require().GreaterOrEqual(q.Cap(), uint32(4))
	capacity := int(q.Cap())

	const total = 100
	accepted := 0
	for i := 0; i < total; i++ {
		if q.Push(i) {
			accepted++
		}
	}
	s.Equal(capacity, accepted)
	s.Equal(0, q.Free())

	var got []int
	q.Drain(func(v int) { got = append(got, v) })

	m := q.Metrics()
	s.Equal(int64(capacity), m.Pushed)
	s.Equal(int64(total-capacity), m.Dropped)
	s.Len(got, capacity)
	s.Equal(0, got[0], "queued values are never evicted")
	s.IsIncreasing(got)
}

func (s *QueueTestSuite) TestOfferKeepsReserveForPush() {
	q := s.newQueue(8)
	capacity := int(q.Cap())
	const reserve = 2

	offered := 0
	for i := 0; i < 2*capacity; i++ {
		if q.Offer(i, reserve) {
			offered++
		}
	}
	s.Equal(capacity-reserve, offered)
	s.Equal(reserve, q.Free())

	s.True(q.Push(-1))
	s.True(q.Push(-2))
	s.False(q.Push(-3))

	var got []int
	q.Drain(func(v int) { got = append(got, v) })
	s.Equal([]int{-1, -2}, got[len(got)-2:])
}

func (s *QueueTestSuite) TestCloseRejectsAndDiscardReleasesOnce() {
	q := s.newQueue(16)
	q.Push(1)
	q.Push(2)
	q.Close()
	q.Close()

	s.True(q.Closed())
	s.False(q.Push(3))

	released := map[int]int{}
	n := q.Discard(func(v int) { released[v]++ })
	s.Equal(2, n)
	s.Equal(map[int]int{1: 1, 2: 1}, released)
	s.Equal(0, q.Discard(nil))

	m := q.Metrics()
	s.Equal(int64(1), m.Rejected)
	s.Equal(int64(2), m.Released)
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}

func TestNew_RejectsOversizedCapacity(t *testing.T) {
	_, err := New[int]("big", MaxCapacity+1, nil)
	require.Error(t, err)

	q, err := New[int]("default", 0, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q.Cap(), DefaultCapacity)
}

func TestQueue_ConcurrentProducers(t *testing.T) {
	q, err := New[int]("concurrent", 1<<14, nil)
	require.NoError(t, err)

	const producers, perProducer = 4, 500
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base + i)
			}
		}(p * perProducer)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	seen := make(map[int]bool)
	consume := func(v int) { seen[v] = true }
	for {
		select {
		case <-q.Ready():
			q.Drain(consume)
			continue
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("producers did not finish")
		}
		break
	}
	q.Drain(consume)

	assert.Len(t, seen, producers*perProducer)
	assert.Equal(t, int64(0), q.Metrics().Dropped)
}

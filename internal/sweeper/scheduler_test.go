package sweeper

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_RunsRegisteredJobOnInterval(t *testing.T) {
	s := New()
	var count int32
	s.Register("tick", 10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	s.Start()
	defer s.Stop()

	time.Sleep(55 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&count), int32(3))
}

func TestScheduler_DuplicateRegistrationPanics(t *testing.T) {
	s := New()
	s.Register("dup", time.Second, func() {})

	assert.Panics(t, func() {
		s.Register("dup", time.Second, func() {})
	})
}

func TestScheduler_JobPanicDoesNotStopScheduler(t *testing.T) {
	s := New()
	var survived int32
	s.Register("panicky", 10*time.Millisecond, func() { panic("boom") })
	s.Register("survivor", 10*time.Millisecond, func() { atomic.AddInt32(&survived, 1) })
	s.Start()
	defer s.Stop()

	time.Sleep(55 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&survived), int32(3))
}

func TestScheduler_StopWaitsForInFlightWork(t *testing.T) {
	s := New()
	done := make(chan struct{})
	s.Register("slow", 5*time.Millisecond, func() {
		time.Sleep(30 * time.Millisecond)
		close(done)
	})
	s.Start()
	time.Sleep(10 * time.Millisecond) // let the job start before stopping

	s.Stop()
	select {
	case <-done:
	default:
		t.Fatal("Stop returned before in-flight job finished")
	}
}

package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerPool(t *testing.T) {
	assert := assert.New(t)

	t.Run("Reused timer fires with new duration", func(t *testing.T) {
		timer1 := GetTimer(time.Hour)
		PutTimer(timer1)

		begin := time.Now()
		timer2 := GetTimer(20 * time.Millisecond)
		select {
		case <-timer2.C:
			assert.GreaterOrEqual(time.Since(begin), 15*time.Millisecond)
		case <-time.After(time.Second):
			t.Error("timer should have fired")
		}
		PutTimer(timer2)
	})

	t.Run("Expired timer is drained on put", func(t *testing.T) {
		timer := GetTimer(time.Millisecond)
		time.Sleep(10 * time.Millisecond)
		PutTimer(timer)

		timer = GetTimer(200 * time.Millisecond)
		defer PutTimer(timer)
		select {
		case <-timer.C:
			t.Error("stale expiry leaked into reused timer")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("Concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(5 * time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}

func TestBufferPool(t *testing.T) {
	assert := assert.New(t)

	bp := GetBuffer(16)
	assert.Empty(*bp)
	assert.GreaterOrEqual(cap(*bp), 16)
	*bp = append(*bp, 1, 2, 3)
	PutBuffer(bp)

	bp = GetBuffer(4096)
	assert.Empty(*bp)
	assert.GreaterOrEqual(cap(*bp), 4096)
	PutBuffer(bp)

	big := make([]byte, 0, maxPooledBuffer+1)
	PutBuffer(&big)
	PutBuffer(nil)
}

package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(start time.Time) (*Limiter, *time.Time) {
	current := start
	l := NewLimiter()
	l.now = func() time.Time { return current }
	return l, &current
}

func TestCanCallAdmitsUpToLimit(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		assert.True(t, l.CanCall("finnhub", 5, time.Minute), "call %d should be admitted", i+1)
		l.RecordCall("finnhub")
	}

	assert.False(t, l.CanCall("finnhub", 5, time.Minute), "call over the limit should be denied")
}

func TestCanCallAdmitsAfterWindowSlides(t *testing.T) {
	l, clock := newTestLimiter(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		l.RecordCall("alpha_vantage")
	}
	assert.False(t, l.CanCall("alpha_vantage", 3, time.Minute))

	// Sliding past the oldest call frees one slot
	*clock = clock.Add(61 * time.Second)
	assert.True(t, l.CanCall("alpha_vantage", 3, time.Minute))
}

func TestCanCallWithNoHistoryAlwaysAdmits(t *testing.T) {
	l, _ := newTestLimiter(time.Now())

	assert.True(t, l.CanCall("polygon", 1, time.Minute))
	assert.False(t, l.CanCall("polygon", 0, time.Minute), "zero limit denies even with no history")
}

func TestProvidersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 5; i++ {
		l.RecordCall("finnhub")
	}

	assert.False(t, l.CanCall("finnhub", 5, time.Minute))
	assert.True(t, l.CanCall("twelve_data", 5, time.Minute), "another provider's window is unaffected")
}

func TestDailyCountResetsAtMidnight(t *testing.T) {
	l, clock := newTestLimiter(time.Date(2026, 3, 2, 23, 30, 0, 0, time.UTC))

	l.RecordCall("finnhub")
	l.RecordCall("finnhub")
	assert.Equal(t, 2, l.DailyCount("finnhub"))

	*clock = clock.Add(time.Hour) // past midnight
	assert.Equal(t, 0, l.DailyCount("finnhub"))

	l.RecordCall("finnhub")
	assert.Equal(t, 1, l.DailyCount("finnhub"))
}

func TestConcurrentRecordAndCheck(t *testing.T) {
	l := NewLimiter()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.RecordCall("finnhub")
			l.CanCall("finnhub", 100, time.Minute)
			l.RecordCall("polygon")
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, l.DailyCount("finnhub"))
	assert.Equal(t, 20, l.DailyCount("polygon"))
}

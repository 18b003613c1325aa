package planter

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

func TestSchedule_DefaultsUnset(t *testing.T) {
	s := NewSchedule().Snapshot()
	assert.Equal(t, [2]int{-1, -1}, s.WaterTimes)
	assert.Equal(t, 0, s.WaterDuration)
	for h := 0; h < 24; h++ {
		assert.False(t, s.Due(h))
	}
	assert.False(t, s.Due(-1))
}

func TestSchedule_Apply(t *testing.T) {
	s := NewSchedule()
	at := time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

	assert.True(t, s.Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, at))
	assert.False(t, s.Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, at))

	snap := s.Snapshot()
	assert.True(t, snap.Due(6))
	assert.True(t, snap.Due(18))
	assert.False(t, snap.Due(7))
	assert.Equal(t, 10*time.Second, snap.Duration())
	assert.Equal(t, at, snap.UpdatedAt)
	assert.Equal(t, messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, snap.Params())
}

func TestSchedule_OneHourUnset(t *testing.T) {
	s := NewSchedule()
	s.Apply(messages.RemoteParams{WaterDuration: 5, WaterTimes: [2]int{-1, 0}}, time.Now())
	snap := s.Snapshot()
	assert.True(t, snap.Due(0))
	assert.False(t, snap.Due(23))
}

func TestSchedule_ConcurrentAccess(t *testing.T) {
	s := NewSchedule()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			s.Apply(messages.RemoteParams{WaterDuration: i, WaterTimes: [2]int{i % 24, (i + 1) % 24}}, time.Now())
		}(i)
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			// both fields always come from the same Apply
			if snap.WaterDuration > 0 {
				assert.Equal(t, snap.WaterDuration%24, snap.WaterTimes[0])
			}
		}()
	}
	wg.Wait()
}

package planter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
	"github.com/LeonardoBeccarini/smart_planter/internal/remote"
)

// A payload without Water_Times_Set fails the sync and leaves the schedule alone.
func TestSyncParameters_RemoteMissingWaterTimes(t *testing.T) {
	var patches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"Water_Duration_Set": 45}`)
		case http.MethodPatch:
			patches.Add(1)
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	defer srv.Close()

	client, err := remote.NewClient(remote.Config{BaseURL: srv.URL, APIKey: "k", ParamsTable: "Parameters", TelemetryTable: "Sensor_Data", Timeout: time.Second})
	require.NoError(t, err)

	f := newFixture(t)
	f.ctrl.deps.Remote = client
	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, f.now)

	err = f.ctrl.SyncParameters(context.Background())
	require.ErrorIs(t, err, model.ErrParse)
	snap := f.ctrl.Schedule().Snapshot()
	assert.Equal(t, [2]int{6, 18}, snap.WaterTimes)
	assert.Equal(t, 10, snap.WaterDuration)
	assert.Zero(t, patches.Load())
}

package planter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/messages"
)

func TestNewController_RequiresDeps(t *testing.T) {
	_, err := NewController(nil, nil, nil, Deps{}, Options{})
	assert.Error(t, err)
}

func TestSyncParameters_AppliesAndConfirms(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.SyncParameters(context.Background()))

	snap := f.ctrl.Schedule().Snapshot()
	assert.Equal(t, [2]int{6, 18}, snap.WaterTimes)
	assert.Equal(t, 10, snap.WaterDuration)
	require.Len(t, f.remote.patched, 1)
	assert.Equal(t, messages.StatusReport{ChipTemp: 47.2, WaterDurationConfirm: 10, WaterTimesConfirm: [2]int{6, 18}}, f.remote.patched[0])

	last, lastErr := f.ctrl.LastSync()
	assert.Equal(t, f.now, last)
	assert.NoError(t, lastErr)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.syncs.WithLabelValues("ok")))
	assert.Equal(t, 47.2, testutil.ToFloat64(f.metrics.chipTemp))
}

func TestSyncParameters_ChipTempUnavailable(t *testing.T) {
	f := newFixture(t)
	f.ctrl.deps.Thermometer = fakeThermo{err: errors.New("no thermal zone")}

	require.NoError(t, f.ctrl.SyncParameters(context.Background()))
	require.Len(t, f.remote.patched, 1)
	assert.Equal(t, -1.0, f.remote.patched[0].ChipTemp)
}

func TestSyncParameters_FailureKeepsSchedule(t *testing.T) {
	for _, sentinel := range []error{model.ErrParse, model.ErrTransport} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			f := newFixture(t)
			f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 30, WaterTimes: [2]int{7, 19}}, f.now)
			f.remote.fetchErr = fmt.Errorf("GET Parameters: %w", sentinel)

			err := f.ctrl.SyncParameters(context.Background())
			require.ErrorIs(t, err, sentinel)

			snap := f.ctrl.Schedule().Snapshot()
			assert.Equal(t, [2]int{7, 19}, snap.WaterTimes)
			assert.Equal(t, 30, snap.WaterDuration)
			assert.Empty(t, f.remote.patched)
			assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.syncs.WithLabelValues("fail")))
		})
	}
}

func TestSyncParameters_ConfirmFails(t *testing.T) {
	f := newFixture(t)
	f.remote.patchErr = fmt.Errorf("PATCH Parameters: %w", model.ErrTransport)

	err := f.ctrl.SyncParameters(context.Background())
	require.ErrorIs(t, err, model.ErrTransport)
	// the fetched values are applied even when the confirmation is lost
	assert.Equal(t, 10, f.ctrl.Schedule().Snapshot().WaterDuration)
	last, _ := f.ctrl.LastSync()
	assert.True(t, last.IsZero())
}

func TestWaterIfDue_ScheduledHour(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, f.now)

	require.NoError(t, f.ctrl.WaterIfDue(context.Background(), f.now))

	for _, v := range f.valves {
		assert.Equal(t, []entities.Level{entities.Low, entities.High}, f.gpio.pinWrites(v.Pin), v.Name)
	}
	assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 10 * time.Second, 20 * time.Second}, f.sleeps.d)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.cycles.WithLabelValues("schedule")))
}

func TestWaterIfDue_OtherHour(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, f.now)

	require.NoError(t, f.ctrl.WaterIfDue(context.Background(), f.now.Add(time.Hour)))
	assert.Empty(t, f.gpio.writes)
	assert.Empty(t, f.sleeps.d)
}

func TestWaterIfDue_UsesLocalHour(t *testing.T) {
	f := newFixture(t)
	loc := time.FixedZone("UTC-7", -7*3600)
	f.ctrl.loc = loc
	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 5, WaterTimes: [2]int{6, messages.Unset}}, f.now)

	// 13:00 UTC is 06:00 at UTC-7
	require.NoError(t, f.ctrl.WaterIfDue(context.Background(), time.Date(2024, 5, 3, 13, 0, 0, 0, time.UTC)))
	assert.Len(t, f.gpio.writes, 4)
}

func TestWaterIfDue_UnsetAndZero(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.WaterIfDue(context.Background(), f.now))
	assert.Empty(t, f.gpio.writes, "default schedule has no hours")

	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 0, WaterTimes: [2]int{6, 18}}, f.now)
	require.NoError(t, f.ctrl.WaterIfDue(context.Background(), f.now))
	assert.Empty(t, f.gpio.writes)
}

func TestWaterIfDue_FailingValveIsolated(t *testing.T) {
	f := newFixture(t)
	f.gpio.bad[5] = true
	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, f.now)

	err := f.ctrl.WaterIfDue(context.Background(), f.now)
	require.ErrorIs(t, err, model.ErrHardwareConfig)
	assert.Equal(t, []entities.Level{entities.Low, entities.High}, f.gpio.pinWrites(6))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.cycles.WithLabelValues("schedule")))
}

func TestReportSensors_OK(t *testing.T) {
	f := newFixture(t)

	res := f.ctrl.ReportSensors(context.Background())
	assert.Equal(t, map[string]string{"Sensor_1": TelemetryOK, "Sensor_2": TelemetryOK}, res)
	require.Len(t, f.remote.posted, 2)
	assert.Equal(t, messages.Telemetry{Name: "Sensor_1", Month: 5, Day: 3, Hour: 6, Moisture: 100}, f.remote.posted[0])
	assert.Equal(t, 0.0, f.remote.posted[1].Moisture)

	latest := f.ctrl.Latest()
	require.Len(t, latest, 2)
	assert.Equal(t, "balcony", latest[0].Planter)
	assert.Equal(t, 1040, latest[0].Raw)
	assert.Equal(t, 100.0, testutil.ToFloat64(f.metrics.moisture.WithLabelValues("Sensor_1")))
	assert.Equal(t, []string{"planter/balcony/telemetry/Sensor_1", "planter/balcony/telemetry/Sensor_2"}, f.pub.topics())
}

func TestReportSensors_RetryOnce(t *testing.T) {
	f := newFixture(t)
	f.remote.postErrs = []error{model.ErrTransport}

	res := f.ctrl.ReportSensors(context.Background())
	assert.Equal(t, TelemetryRetried, res["Sensor_1"])
	assert.Equal(t, TelemetryOK, res["Sensor_2"])
	assert.Equal(t, 3, f.remote.postCalls)
	assert.Len(t, f.remote.posted, 2)
}

func TestReportSensors_DropAfterSecondFailure(t *testing.T) {
	f := newFixture(t)
	f.remote.postErrs = []error{model.ErrTransport, model.ErrTransport}

	res := f.ctrl.ReportSensors(context.Background())
	assert.Equal(t, TelemetryDropped, res["Sensor_1"])
	assert.Equal(t, TelemetryOK, res["Sensor_2"])
	assert.Equal(t, 3, f.remote.postCalls, "first sensor tried twice, second once")
	require.Len(t, f.remote.posted, 1)
	assert.Equal(t, "Sensor_2", f.remote.posted[0].Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.telemetry.WithLabelValues(TelemetryDropped)))
}

func TestReportSensors_SkipsUnreadable(t *testing.T) {
	f := newFixture(t)
	f.sensors[0].MeanDry, f.sensors[0].MeanWet = entities.Uncalibrated, entities.Uncalibrated
	f.ctrl.deps.ADC = fakeADC{raw: map[int]int{0: 1200}, err: map[int]error{1: errors.New("i2c nack")}}

	res := f.ctrl.ReportSensors(context.Background())
	assert.Equal(t, map[string]string{"Sensor_1": TelemetrySkipped, "Sensor_2": TelemetrySkipped}, res)
	assert.Zero(t, f.remote.postCalls)
}

type recordingSink struct {
	got []messages.SensorReading
	err error
}

func (s *recordingSink) Write(_ context.Context, r messages.SensorReading) error {
	s.got = append(s.got, r)
	return s.err
}

func TestReportSensors_SinkFailureDoesNotBlockReport(t *testing.T) {
	f := newFixture(t)
	sink := &recordingSink{err: errors.New("influx down")}
	f.ctrl.deps.Sinks = []ReadingSink{sink}

	f.ctrl.ReportSensors(context.Background())
	assert.Len(t, sink.got, 2)
	assert.Len(t, f.remote.posted, 2)
}

const configTopic = "planter/balcony/config"

var (
	pushA = []byte(`{"Water_Duration_Set": 25, "Water_Times_Set": [7, 20]}`)
	pushB = []byte(`{"Water_Duration_Set": 20, "Water_Times_Set": [7, 19]}`)
)

func push(id uint16, dup bool, payload []byte) ConfigMessage {
	return ConfigMessage{Topic: configTopic, ID: id, Duplicate: dup, Payload: payload}
}

func TestHandleConfigMessage(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(1, false, pushA)))
	snap := f.ctrl.Schedule().Snapshot()
	assert.Equal(t, [2]int{7, 20}, snap.WaterTimes)
	assert.Equal(t, 25, snap.WaterDuration)
	require.Len(t, f.remote.stored, 1)
}

func TestHandleConfigMessage_RepeatedPushIsApplied(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(1, false, pushA)))
	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(2, false, pushB)))
	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(3, false, pushA)))

	snap := f.ctrl.Schedule().Snapshot()
	assert.Equal(t, [2]int{7, 20}, snap.WaterTimes)
	assert.Equal(t, 25, snap.WaterDuration)
	assert.Len(t, f.remote.stored, 3)
}

func TestHandleConfigMessage_RedeliveryIgnored(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(1, false, pushA)))
	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(2, false, pushB)))
	// late QoS1 redelivery of the first packet must not roll back to A
	require.NoError(t, f.ctrl.HandleConfigMessage(context.Background(), push(1, true, pushA)))

	snap := f.ctrl.Schedule().Snapshot()
	assert.Equal(t, [2]int{7, 19}, snap.WaterTimes)
	assert.Equal(t, 20, snap.WaterDuration)
	assert.Len(t, f.remote.stored, 2)
}

func TestHandleConfigMessage_MissingFieldKeepsState(t *testing.T) {
	f := newFixture(t)
	f.ctrl.Schedule().Apply(messages.RemoteParams{WaterDuration: 10, WaterTimes: [2]int{6, 18}}, f.now)

	err := f.ctrl.HandleConfigMessage(context.Background(), ConfigMessage{
		Topic: "planter/all/config", ID: 4, Payload: []byte(`{"Water_Duration_Set": 99}`),
	})
	require.ErrorIs(t, err, model.ErrParse)
	snap := f.ctrl.Schedule().Snapshot()
	assert.Equal(t, [2]int{6, 18}, snap.WaterTimes)
	assert.Equal(t, 10, snap.WaterDuration)
	assert.Empty(t, f.remote.stored)
}

func TestConfigTopics(t *testing.T) {
	f := newFixture(t)
	f.ctrl.prefix = "garden"
	assert.Equal(t, []string{"garden/balcony/config", "garden/all/config"}, f.ctrl.ConfigTopics())
}

func TestValveTransitionsPublished(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ctrl.deps.Valves.Configure(f.valves))

	require.Len(t, f.pub.msgs, 2)
	assert.Equal(t, "planter/balcony/valve/Valve_1", f.pub.msgs[0].topic)
	ev, ok := f.pub.msgs[0].v.(messages.ValveStateChanged)
	require.True(t, ok)
	assert.Equal(t, entities.ValveClosed, ev.NewState)
	assert.Equal(t, "boot", ev.Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.transitions.WithLabelValues("Valve_1", "closed")))
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"google.golang.org/grpc"

	"github.com/LeonardoBeccarini/smart_planter/internal/calibration"
	"github.com/LeonardoBeccarini/smart_planter/internal/config"
	"github.com/LeonardoBeccarini/smart_planter/internal/hal"
	"github.com/LeonardoBeccarini/smart_planter/internal/model/entities"
	"github.com/LeonardoBeccarini/smart_planter/internal/remote"
	"github.com/LeonardoBeccarini/smart_planter/internal/services/device"
	"github.com/LeonardoBeccarini/smart_planter/internal/services/persistence"
	"github.com/LeonardoBeccarini/smart_planter/internal/services/planter"
	"github.com/LeonardoBeccarini/smart_planter/internal/valve"
	"github.com/LeonardoBeccarini/smart_planter/pkg/broker"
)

func main() {
	cfgPath := flag.String("config", envOr("PLANTER_CONFIG", "/etc/planter/planter.yaml"), "configuration file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Printf("config: WARN %v, using UTC", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- hardware ----
	board, err := hal.Open(cfg.Hardware, cfg.Calibration)
	if err != nil {
		log.Fatalf("hardware: %v", err)
	}
	defer board.Close()
	board.SetStatus(hal.StatusBusy)

	sensors, valves := buildUnits(cfg)
	if board.Sim != nil {
		for _, v := range valves {
			if v.Sensor != nil {
				board.Sim.Link(v.Pin, v.Sensor.Channel)
			}
		}
	}

	var publisher broker.IPublisher
	var mqttClient mqtt.Client
	subs := &broker.Subscriptions{}
	if cfg.MQTT.Host != "" {
		mqttClient, err = broker.Connect(ctx, &broker.Config{
			Host:        cfg.MQTT.Host,
			Port:        cfg.MQTT.Port,
			User:        cfg.MQTT.User,
			Password:    cfg.MQTT.Password,
			ClientID:    cfg.MQTT.ClientID,
			WillTopic:   broker.Topic(cfg.MQTT.TopicPrefix, cfg.Name, "status"),
			WillPayload: `{"online":false}`,
			OnConnect:   subs.OnConnect,
		})
		if err != nil {
			log.Printf("mqtt: WARN local bus disabled: %v", err)
		} else {
			publisher = broker.NewPublisher(mqttClient)
			_ = publisher.PublishJSON(broker.Topic(cfg.MQTT.TopicPrefix, cfg.Name, "status"), map[string]any{"online": true})
		}
	}

	metrics := planter.NewMetrics(cfg.Name)
	valveCtrl := valve.NewController(board.GPIO, valve.WithSoakFactor(cfg.Loops.SoakFactor))
	if err := valveCtrl.Configure(valves); err != nil {
		board.SetStatus(hal.StatusError)
		log.Fatalf("valves: %v", err)
	}

	if cfg.Calibration.Enabled {
		calibrate(ctx, cfg, *cfgPath, board, sensors)
	}

	// ---- remote + sinks ----
	client, err := remote.NewClient(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		APIKey:         cfg.Remote.APIKey,
		ParamsTable:    cfg.Remote.ParamsTable,
		TelemetryTable: cfg.Remote.TelemetryTable,
		CAFile:         cfg.Remote.CAFile,
		Timeout:        cfg.Remote.Timeout,
		BreakerFails:   cfg.Remote.BreakerFails,
		BreakerOpen:    cfg.Remote.BreakerOpen,
	})
	if err != nil {
		board.SetStatus(hal.StatusError)
		log.Fatalf("remote: %v", err)
	}

	var sinks []planter.ReadingSink
	var influx *persistence.Sink
	if cfg.Influx.URL != "" {
		influx, err = persistence.NewSink(persistence.InfluxConfig{
			URL:         cfg.Influx.URL,
			Token:       cfg.Influx.Token,
			Org:         cfg.Influx.Org,
			Bucket:      cfg.Influx.Bucket,
			Measurement: cfg.Influx.Measurement,
		})
		if err != nil {
			log.Printf("influx: WARN history disabled: %v", err)
		} else {
			defer influx.Close()
			sinks = append(sinks, influx)
		}
	}

	ctrl, err := planter.NewController(sensors, valves, planter.NewSchedule(), planter.Deps{
		Remote:       client,
		ADC:          board.ADC,
		Thermometer:  board.Thermometer,
		Valves:       valveCtrl,
		Connectivity: planter.NewTCPChecker(client.Host()),
		Sinks:        sinks,
		Publisher:    publisher,
		Metrics:      metrics,
	}, planter.Options{
		Name:         cfg.Name,
		TopicPrefix:  cfg.MQTT.TopicPrefix,
		Location:     loc,
		SyncPeriod:   cfg.Loops.SyncPeriod,
		RecordPeriod: cfg.Loops.RecordPeriod,
		RetryDelay:   cfg.Loops.RetryDelay,
	})
	if err != nil {
		log.Fatalf("planter: %v", err)
	}

	if mqttClient != nil {
		consumer := broker.NewConsumer(mqttClient, func(topic string, m mqtt.Message) error {
			return ctrl.HandleConfigMessage(ctx, planter.ConfigMessage{
				Topic:     topic,
				ID:        m.MessageID(),
				Duplicate: m.Duplicate(),
				Payload:   m.Payload(),
			})
		}, ctrl.ConfigTopics()...)
		subs.Add(consumer)
		go consumer.ConsumeMessage(ctx)
	}

	// ---- status API ----
	checks := map[string]planter.HealthCheck{}
	if mqttClient != nil {
		checks["mqtt"] = mqttClient.IsConnectionOpen
	}
	if influx != nil {
		checks["influx"] = func() bool { return influx.LastErrorAge() > 30*time.Second }
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           planter.NewStatusHandler(ctrl, planter.StatusServerOptions{Checks: checks, AccessLog: true}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("planter: status API on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http: %v", err)
		}
	}()

	// ---- manual valve API ----
	handler := device.NewGrpcHandler(ctx, valveCtrl, valves, device.Options{
		Planter:     cfg.Name,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		Publisher:   publisher,
	})
	grpcSrv := grpc.NewServer()
	device.RegisterValveServiceServer(grpcSrv, handler)
	if lis, err := net.Listen("tcp", cfg.GRPC.Addr); err != nil {
		log.Printf("grpc: WARN manual valve API disabled: %v", err)
	} else {
		go func() {
			log.Printf("planter: valve API on %s", cfg.GRPC.Addr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Printf("grpc: %v", err)
			}
		}()
	}

	board.SetStatus(hal.StatusReady)
	log.Printf("planter %s: running (tz %s, sync %s, record %s)", cfg.Name, loc, cfg.Loops.SyncPeriod, cfg.Loops.RecordPeriod)
	ctrl.Run(ctx)

	// ---- graceful shutdown ----
	log.Println("shutting down...")
	grpcSrv.GracefulStop()
	handler.Wait()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	for _, v := range valves {
		_ = valveCtrl.Stop(v)
	}
	board.SetStatus(hal.StatusOff)
}

func buildUnits(cfg *config.Config) ([]*entities.Sensor, []*entities.Valve) {
	byName := map[string]*entities.Sensor{}
	sensors := make([]*entities.Sensor, 0, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		s := entities.NewSensor(sc.Name, sc.Channel)
		s.MeanDry, s.MeanWet = sc.MeanDry, sc.MeanWet
		sensors = append(sensors, s)
		byName[s.Name] = s
	}
	valves := make([]*entities.Valve, 0, len(cfg.Valves))
	for _, vc := range cfg.Valves {
		valves = append(valves, &entities.Valve{Name: vc.Name, Pin: vc.Pin, Sensor: byName[vc.Sensor]})
	}
	return sensors, valves
}

// calibrate runs the interactive calibration. Sensors that fail keep the
// references from the configuration.
func calibrate(ctx context.Context, cfg *config.Config, path string, board *hal.Board, sensors []*entities.Sensor) {
	err := calibration.Calibrate(ctx, sensors, board.ADC, board.Button, calibration.Options{
		Samples:        cfg.Calibration.Samples,
		Interval:       cfg.Calibration.Interval,
		TriggerTimeout: cfg.Calibration.Timeout,
		OnPhase: func(p calibration.Phase) {
			board.SetStatus(hal.StatusReady)
			log.Printf("calibration: place the sensors in %s soil and press the button", p)
		},
	})
	board.SetStatus(hal.StatusBusy)
	if err != nil {
		log.Printf("calibration: WARN %v", err)
	}
	for _, s := range sensors {
		log.Printf("calibration: %s dry=%.2f wet=%.2f", s.Name, s.MeanDry, s.MeanWet)
	}
	if board.Sim == nil {
		if err := persistReferences(cfg, path, sensors); err != nil {
			log.Printf("calibration: WARN references not saved: %v", err)
		}
	}
}

// persistReferences stores the new references so the next boot can skip
// calibration.
func persistReferences(cfg *config.Config, path string, sensors []*entities.Sensor) error {
	refs := make(map[string][2]float64, len(sensors))
	for _, s := range sensors {
		if s.Calibrated() {
			refs[s.Name] = [2]float64{s.MeanDry, s.MeanWet}
		}
	}
	for i := range cfg.Sensors {
		if r, ok := refs[cfg.Sensors[i].Name]; ok {
			cfg.Sensors[i].MeanDry, cfg.Sensors[i].MeanWet = r[0], r[1]
		}
	}
	return config.SaveReferences(path, refs)
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

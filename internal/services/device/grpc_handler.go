// Package device exposes the valves over gRPC for manual watering.
package device

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
	"github.com/LeonardoBeccarini/smart_planter/internal/valve"
	"github.com/LeonardoBeccarini/smart_planter/pkg/broker"
)

// DefaultMaxDuration bounds a manual cycle.
const DefaultMaxDuration = 30 * time.Minute

// Valves is the part of the valve controller used by the handler.
type Valves interface {
	Water(ctx context.Context, v *model.Valve, d time.Duration, source string) error
	Stop(v *model.Valve) error
	Position(name string) (model.ValvePosition, bool)
}

type Options struct {
	Planter     string
	TopicPrefix string
	MaxDuration time.Duration
	Publisher   broker.IPublisher // optional, receives WateringResult events
}

// GrpcHandler implements ValveServiceServer on top of the valve controller.
type GrpcHandler struct {
	ctx    context.Context // parent of manual cycles, outlives single RPCs
	valves Valves
	byName map[string]*model.Valve
	order  []string
	opts   Options
	now    func() time.Time

	wg      sync.WaitGroup
	mu      sync.Mutex
	tickets map[string]string // valve -> running ticket
}

var _ ValveServiceServer = (*GrpcHandler)(nil)

func NewGrpcHandler(ctx context.Context, ctrl Valves, list []*model.Valve, opts Options) *GrpcHandler {
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = DefaultMaxDuration
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "planter"
	}
	h := &GrpcHandler{
		ctx:     ctx,
		valves:  ctrl,
		byName:  make(map[string]*model.Valve, len(list)),
		opts:    opts,
		now:     time.Now,
		tickets: map[string]string{},
	}
	for _, v := range list {
		h.byName[v.Name] = v
		h.order = append(h.order, v.Name)
	}
	return h
}

// StartWatering schedules one manual cycle and returns a ticket right away.
// The cycle waits for any running cycle to finish first.
func (h *GrpcHandler) StartWatering(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	v, err := h.lookup(in)
	if err != nil {
		return nil, err
	}
	secs := in.GetFields()["duration_s"].GetNumberValue()
	d := time.Duration(secs * float64(time.Second))
	if d <= 0 || d > h.opts.MaxDuration {
		return nil, status.Errorf(codes.InvalidArgument, "duration_s must be in (0, %d]", int(h.opts.MaxDuration.Seconds()))
	}

	ticket := uuid.NewString()
	h.mu.Lock()
	h.tickets[v.Name] = ticket
	h.mu.Unlock()

	h.wg.Add(1)
	go h.run(v, d, ticket)

	log.Printf("device: manual watering %s for %s accepted, ticket %s", v.Name, d, ticket)
	return structpb.NewStruct(map[string]any{
		"ticket_id":  ticket,
		"valve":      v.Name,
		"duration_s": d.Seconds(),
		"message":    fmt.Sprintf("watering %s for %s", v.Name, d),
	})
}

func (h *GrpcHandler) run(v *model.Valve, d time.Duration, ticket string) {
	defer h.wg.Done()
	started := h.now()
	err := h.valves.Water(h.ctx, v, d, valve.SourceManual)

	h.mu.Lock()
	if h.tickets[v.Name] == ticket {
		delete(h.tickets, v.Name)
	}
	h.mu.Unlock()

	res := model.WateringResult{
		Planter:   h.opts.Planter,
		Valve:     v.Name,
		TicketID:  ticket,
		Status:    "OK",
		Reason:    "done",
		Duration:  int(d.Seconds()),
		StartedAt: started,
		Timestamp: h.now(),
	}
	switch {
	case errors.Is(err, context.Canceled):
		res.Status, res.Reason = "FAIL", "cancelled"
	case err != nil:
		res.Status, res.Reason = "FAIL", "error"
		log.Printf("device: ticket %s: %v", ticket, err)
	}
	h.publishResult(res)
}

func (h *GrpcHandler) publishResult(res model.WateringResult) {
	if h.opts.Publisher == nil {
		return
	}
	topic := broker.Topic(h.opts.TopicPrefix, h.opts.Planter, "watering", res.Valve)
	if err := h.opts.Publisher.PublishJSON(topic, res); err != nil {
		log.Printf("device: publish result %s: %v", res.TicketID, err)
	}
}

// StopWatering aborts the running cycle on the valve, if any, and closes it.
func (h *GrpcHandler) StopWatering(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	v, err := h.lookup(in)
	if err != nil {
		return nil, err
	}
	if err := h.valves.Stop(v); err != nil {
		return nil, status.Errorf(codes.Internal, "stop %s: %v", v.Name, err)
	}
	h.mu.Lock()
	ticket := h.tickets[v.Name]
	h.mu.Unlock()
	return structpb.NewStruct(map[string]any{
		"valve":     v.Name,
		"position":  string(model.ValveClosed),
		"ticket_id": ticket,
	})
}

// ListValves returns every valve with its last applied position.
func (h *GrpcHandler) ListValves(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	items := make([]any, 0, len(h.order))
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, name := range h.order {
		v := h.byName[name]
		pos, ok := h.valves.Position(name)
		if !ok {
			pos = "unknown"
		}
		item := map[string]any{
			"name":      v.Name,
			"pin":       v.Pin,
			"position":  string(pos),
			"ticket_id": h.tickets[name],
		}
		if v.Sensor != nil {
			item["sensor"] = v.Sensor.Name
		}
		items = append(items, item)
	}
	return structpb.NewStruct(map[string]any{"valves": items})
}

// Wait blocks until every accepted manual cycle has ended.
func (h *GrpcHandler) Wait() {
	h.wg.Wait()
}

func (h *GrpcHandler) lookup(in *structpb.Struct) (*model.Valve, error) {
	name := strings.TrimSpace(in.GetFields()["valve"].GetStringValue())
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "valve is required")
	}
	v, ok := h.byName[name]
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown valve %q", name)
	}
	return v, nil
}

package device

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// ValveInfo is one entry of ListValves.
type ValveInfo struct {
	Name     string
	Pin      int
	Position string
	Sensor   string
	TicketID string
}

// Client calls the valve service of one planter.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr without TLS; the service is meant for the local network.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// StartWatering requests a manual cycle and returns its ticket.
func (c *Client) StartWatering(ctx context.Context, valve string, d time.Duration) (string, error) {
	out, err := c.call(ctx, "StartWatering", map[string]any{"valve": valve, "duration_s": d.Seconds()})
	if err != nil {
		return "", err
	}
	return out.GetFields()["ticket_id"].GetStringValue(), nil
}

// StopWatering closes the valve and aborts its cycle.
func (c *Client) StopWatering(ctx context.Context, valve string) error {
	_, err := c.call(ctx, "StopWatering", map[string]any{"valve": valve})
	return err
}

func (c *Client) ListValves(ctx context.Context) ([]ValveInfo, error) {
	out, err := c.call(ctx, "ListValves", nil)
	if err != nil {
		return nil, err
	}
	var list []ValveInfo
	for _, item := range out.GetFields()["valves"].GetListValue().GetValues() {
		f := item.GetStructValue().GetFields()
		list = append(list, ValveInfo{
			Name:     f["name"].GetStringValue(),
			Pin:      int(f["pin"].GetNumberValue()),
			Position: f["position"].GetStringValue(),
			Sensor:   f["sensor"].GetStringValue(),
			TicketID: f["ticket_id"].GetStringValue(),
		})
	}
	return list, nil
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

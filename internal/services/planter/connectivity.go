package planter

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
)

// ConnectivityChecker verifies the remote endpoint is reachable.
type ConnectivityChecker interface {
	Check(ctx context.Context) error
}

// TCPChecker dials the remote host, retrying with exponential backoff while the
// network comes back (WiFi reassociation, DHCP).
type TCPChecker struct {
	Addr       string
	Timeout    time.Duration // per dial
	MaxElapsed time.Duration // total retry budget

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewTCPChecker(addr string) *TCPChecker {
	d := &net.Dialer{}
	return &TCPChecker{Addr: addr, Timeout: 3 * time.Second, MaxElapsed: 10 * time.Second, dial: d.DialContext}
}

func (p *TCPChecker) Check(ctx context.Context) error {
	op := func() error {
		dctx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		conn, err := p.dial(dctx, "tcp", p.Addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = p.MaxElapsed

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("%s unreachable: %w: %w", p.Addr, model.ErrConnectivity, err)
	}
	return nil
}

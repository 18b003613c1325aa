package planter

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/smart_planter/internal/model"
)

func TestTCPChecker_Reachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	assert.NoError(t, NewTCPChecker(ln.Addr().String()).Check(context.Background()))
}

func TestTCPChecker_RecoversAfterRetry(t *testing.T) {
	var calls atomic.Int32
	p := NewTCPChecker("remote:443")
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("network is unreachable")
		}
		c1, c2 := net.Pipe()
		_ = c2.Close()
		return c1, nil
	}
	require.NoError(t, p.Check(context.Background()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestTCPChecker_Unreachable(t *testing.T) {
	p := NewTCPChecker("remote:443")
	p.MaxElapsed = 50 * time.Millisecond
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("no route to host")
	}
	err := p.Check(context.Background())
	assert.ErrorIs(t, err, model.ErrConnectivity)
}

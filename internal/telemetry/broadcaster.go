// Package telemetry pushes periodic status datagrams to a ground station.
// The payload is one JSON object per datagram, newline terminated.
package telemetry

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)
type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

// Broadcaster sends status snapshots over UDP at a bounded rate. It is
// driven from the control loop goroutine and is not safe for concurrent
// use.
type Broadcaster struct {
	dest     string
	interval time.Duration
	conn     udpConn
	lastSent time.Time
}

func NewBroadcaster(dest string, interval time.Duration) (*Broadcaster, error) {
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return net.DialUDP(network, laddr, raddr)
	}
	return newBroadcaster(dest, interval, net.ResolveUDPAddr, dial)
}

func newBroadcaster(dest string, interval time.Duration, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}

	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}

	if interval <= 0 {
		interval = 1 * time.Second
	}
	return &Broadcaster{dest: dest, interval: interval, conn: conn}, nil
}

// Publish sends v if the interval has elapsed since the last send. A nil
// receiver is a disabled broadcaster and is always a no-op.
func (b *Broadcaster) Publish(now time.Time, v any) error {
	if b == nil || b.conn == nil {
		return nil
	}
	if !b.lastSent.IsZero() && now.Sub(b.lastSent) < b.interval {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal telemetry: %w", err)
	}
	payload = append(payload, '\n')

	if _, err := b.conn.Write(payload); err != nil {
		return err
	}
	b.lastSent = now
	return nil
}

func (b *Broadcaster) Close() error {
	if b == nil || b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

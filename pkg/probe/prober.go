/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package probe speaks the device discovery protocol: one UDP broadcast round
// collecting every reply inside a wait window, and a framed TCP exchange
// against a single endpoint used as a fallback for devices the broadcast
// missed.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/carverauto/metermon/pkg/logger"
	"github.com/carverauto/metermon/pkg/models"
	"github.com/carverauto/metermon/pkg/wire"
)

const (
	// RequestPayload asks a device for its identity and instantaneous readings.
	RequestPayload = `{"system":{"get_sysinfo":{}},"emeter":{"get_realtime":{}}}`

	// DefaultBroadcastAddr is the discovery port the device firmware listens on.
	DefaultBroadcastAddr = "255.255.255.255:9999"

	maxDatagramSize = 4096
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Result pairs a reply with the endpoint it came from.
type Result struct {
	Endpoint models.Endpoint
	Response models.RawDeviceResponse
}

// Prober performs broadcast and unicast probes. It holds no locks and no
// state beyond its configuration; every call is independent.
type Prober struct {
	broadcastAddr string
	logger        logger.Logger
}

// New creates a prober. An empty broadcastAddr selects the default.
func New(broadcastAddr string, log logger.Logger) *Prober {
	if broadcastAddr == "" {
		broadcastAddr = DefaultBroadcastAddr
	}

	return &Prober{
		broadcastAddr: broadcastAddr,
		logger:        log,
	}
}

// Broadcast sends one obscured request datagram to the broadcast address from
// an ephemeral socket and collects every decodable reply that arrives within
// wait. Malformed replies are dropped with a log line; duplicates from the
// same endpoint are kept once. The call never blocks longer than wait plus
// one send.
func (p *Prober) Broadcast(ctx context.Context, wait time.Duration) ([]Result, error) {
	raddr, err := net.ResolveUDPAddr("udp4", p.broadcastAddr)
	if err != nil {
		return nil, fmt.Errorf("resolving broadcast address %q: %w", p.broadcastAddr, err)
	}

	lc := net.ListenConfig{Control: broadcastControl}

	pc, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("opening broadcast socket: %w", err)
	}

	defer func() {
		if err := pc.Close(); err != nil {
			p.logger.Error().Err(err).Msg("failed to close broadcast socket")
		}
	}()

	if _, err := pc.WriteTo(wire.Obscure([]byte(RequestPayload)), raddr); err != nil {
		return nil, fmt.Errorf("broadcast send: %w", err)
	}

	deadline := time.Now().Add(wait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := pc.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting collection deadline: %w", err)
	}

	return p.collect(pc), nil
}

// collect drains replies until the socket deadline elapses.
func (p *Prober) collect(pc net.PacketConn) []Result {
	var results []Result

	seen := make(map[models.Endpoint]struct{})
	buf := make([]byte, maxDatagramSize)

	for {
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			// deadline expiry ends the collection window
			if !os.IsTimeout(err) {
				p.logger.Warn().Err(err).Msg("broadcast collection ended early")
			}

			return results
		}

		ep, err := models.EndpointFromAddr(addr)
		if err != nil {
			p.logger.Debug().Err(err).Msg("dropping reply with unusable source address")
			continue
		}

		var reply models.DeviceReply
		if err := json.Unmarshal(wire.Reveal(buf[:n]), &reply); err != nil {
			p.logger.Debug().Err(err).Str("endpoint", ep.String()).Msg("dropping undecodable broadcast reply")
			continue
		}

		if _, dup := seen[ep]; dup {
			continue
		}

		seen[ep] = struct{}{}

		results = append(results, Result{Endpoint: ep, Response: reply.Raw()})
	}
}

// Unicast opens a TCP session to one endpoint, writes the length-framed
// obscured request and reads the framed reply. Failures are classified so the
// caller can distinguish a silent device from a garbled one: ErrTimeout when
// wait elapses, ErrConnection on connect or I/O failure, ErrDecode when the
// revealed payload is not valid JSON.
func (p *Prober) Unicast(ctx context.Context, ep models.Endpoint, wait time.Duration) (*models.RawDeviceResponse, error) {
	probeCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", ep.Addr())
	if err != nil {
		return nil, classify(probeCtx, ep, err)
	}

	defer func() {
		if err := conn.Close(); err != nil {
			p.logger.Error().Err(err).Str("endpoint", ep.String()).Msg("failed to close probe connection")
		}
	}()

	if deadline, ok := probeCtx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, classify(probeCtx, ep, err)
		}
	}

	if err := wire.WriteFrame(conn, wire.Obscure([]byte(RequestPayload))); err != nil {
		return nil, classify(probeCtx, ep, err)
	}

	payload, err := wire.ReadFrame(conn)
	if err != nil {
		return nil, classify(probeCtx, ep, err)
	}

	var reply models.DeviceReply
	if err := json.Unmarshal(wire.Reveal(payload), &reply); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, ep, err)
	}

	raw := reply.Raw()

	return &raw, nil
}

func classify(ctx context.Context, ep models.Endpoint, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || os.IsTimeout(err) {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, ep, err)
	}

	return fmt.Errorf("%w: %s: %v", ErrConnection, ep, err)
}

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

// Package models holds the shared wire and domain types for device discovery.
package models

import (
	"fmt"
	"net"
	"strconv"
)

// Endpoint identifies one physical device on the local network.
// It is comparable and used as a map key; identity is address equality.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns the endpoint in host:port form suitable for net.Dial.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	return e.Addr()
}

// EndpointFromAddr builds an Endpoint from a UDP reply source address.
func EndpointFromAddr(addr net.Addr) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return Endpoint{}, fmt.Errorf("malformed reply address %q: %w", addr.String(), err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("malformed reply port %q: %w", portStr, err)
	}

	return Endpoint{Host: host, Port: port}, nil
}

// RawRealtime is the instantaneous emeter payload as it appears on the wire.
// Two hardware generations share this shape: gen-1 reports base-unit floats,
// gen-2 reports scaled integers. For any one quantity at most one family is set.
type RawRealtime struct {
	// gen-1 hardware, base units (V / A / W / kWh)
	Voltage *float64 `json:"voltage,omitempty"`
	Current *float64 `json:"current,omitempty"`
	Power   *float64 `json:"power,omitempty"`
	Total   *float64 `json:"total,omitempty"`

	// gen-2 hardware, named scaled units
	VoltageMV *uint64 `json:"voltage_mv,omitempty"`
	CurrentMA *uint64 `json:"current_ma,omitempty"`
	PowerMW   *uint64 `json:"power_mw,omitempty"`
	TotalWH   *uint64 `json:"total_wh,omitempty"`
}

// RawDeviceResponse is one device's decoded discovery reply.
type RawDeviceResponse struct {
	Alias    string
	DeviceID string
	Realtime *RawRealtime
}

// DeviceReply mirrors the JSON envelope devices answer probes with.
type DeviceReply struct {
	System struct {
		GetSysinfo struct {
			Alias    string `json:"alias"`
			DeviceID string `json:"deviceId"`
		} `json:"get_sysinfo"`
	} `json:"system"`
	Emeter struct {
		GetRealtime *RawRealtime `json:"get_realtime"`
	} `json:"emeter"`
}

// Raw flattens the wire envelope into the internal response shape.
func (r *DeviceReply) Raw() RawDeviceResponse {
	return RawDeviceResponse{
		Alias:    r.System.GetSysinfo.Alias,
		DeviceID: r.System.GetSysinfo.DeviceID,
		Realtime: r.Emeter.GetRealtime,
	}
}

// CanonicalReading is the unit-normalized, generation-agnostic measurement set
// for one device. Produced fresh per scrape and never retained.
type CanonicalReading struct {
	DeviceAlias string
	DeviceID    string
	VoltageV    float64
	CurrentA    float64
	PowerW      float64
	EnergyJ     float64
}

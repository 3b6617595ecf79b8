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

// Package emeter reconciles the two hardware generations' emeter encodings
// into canonical base units.
package emeter

import "github.com/carverauto/metermon/pkg/models"

const (
	milliPerBase      = 1000.0
	joulesPerWattHour = 3600.0
	joulesPerKWH      = 3600.0 * 1000.0
)

// Normalize converts a raw realtime payload into canonical units. It is a pure
// function: per quantity, a non-zero gen-1 value wins, otherwise the gen-2
// scaled integer is used, otherwise zero. A gen-1 value of exactly zero is
// indistinguishable from an absent field on the wire and is treated as absent;
// a device genuinely reading zero therefore falls through to gen-2 (and to 0.0
// when that is also unset). Kept for wire compatibility with the firmware.
func Normalize(raw *models.RawRealtime) (voltageV, currentA, powerW, energyJ float64) {
	if raw == nil {
		return 0, 0, 0, 0
	}

	voltageV = pick(raw.Voltage, raw.VoltageMV, 1/milliPerBase)
	currentA = pick(raw.Current, raw.CurrentMA, 1/milliPerBase)
	powerW = pick(raw.Power, raw.PowerMW, 1/milliPerBase)

	// gen-1 reports kWh, gen-2 reports Wh; both normalize to joules
	if raw.Total != nil && *raw.Total != 0 {
		energyJ = *raw.Total * joulesPerKWH
	} else if raw.TotalWH != nil {
		energyJ = float64(*raw.TotalWH) * joulesPerWattHour
	}

	return voltageV, currentA, powerW, energyJ
}

// Reading normalizes a full device response, carrying over its identity labels.
func Reading(resp *models.RawDeviceResponse) models.CanonicalReading {
	reading := models.CanonicalReading{
		DeviceAlias: resp.Alias,
		DeviceID:    resp.DeviceID,
	}

	reading.VoltageV, reading.CurrentA, reading.PowerW, reading.EnergyJ = Normalize(resp.Realtime)

	return reading
}

func pick(gen1 *float64, gen2 *uint64, scale float64) float64 {
	if gen1 != nil && *gen1 != 0 {
		return *gen1
	}

	if gen2 != nil {
		return float64(*gen2) * scale
	}

	return 0
}

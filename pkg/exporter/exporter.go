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

// Package exporter projects canonical readings into a metrics exposition. A
// throwaway registry is built per scrape so series for vanished devices
// disappear with them.
package exporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carverauto/metermon/pkg/logger"
	"github.com/carverauto/metermon/pkg/models"
	"github.com/carverauto/metermon/pkg/recon"
)

var metricLabels = []string{"device_alias", "device_id"}

// Exporter serves GET /metrics from an acquisition source.
type Exporter struct {
	source recon.Source
	logger logger.Logger
}

// New creates an exporter over the given source.
func New(source recon.Source, log logger.Logger) *Exporter {
	return &Exporter{
		source: source,
		logger: log,
	}
}

// ServeHTTP runs one scrape. Acquisition failure degrades to an empty
// exposition with status 200; only an encoding failure produces a 500, which
// promhttp handles.
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	readings, err := e.source.Readings(r.Context())
	if err != nil {
		e.logger.Error().Err(err).Msg("scrape failed")

		readings = nil
	}

	handler := promhttp.HandlerFor(registry(readings), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})

	handler.ServeHTTP(w, r)
}

// registry builds a fresh registry populated from this scrape's readings.
func registry(readings []models.CanonicalReading) *prometheus.Registry {
	voltage := gaugeVec("device_electric_potential_volts", "Voltage reading from device")
	current := gaugeVec("device_electric_current_amperes", "Current reading from device")
	power := gaugeVec("device_electric_power_watts", "Power reading from device")

	energy := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "device_electric_energy_joules_total",
		Help: "Total energy consumed by device",
	}, metricLabels)

	reg := prometheus.NewRegistry()
	reg.MustRegister(voltage, current, power, energy)

	for _, reading := range readings {
		labels := prometheus.Labels{
			"device_alias": reading.DeviceAlias,
			"device_id":    reading.DeviceID,
		}

		voltage.With(labels).Set(reading.VoltageV)
		current.With(labels).Set(reading.CurrentA)
		power.With(labels).Set(reading.PowerW)
		// the registry is scrape-scoped, so Add on the zero counter sets
		// the device's lifetime total
		energy.With(labels).Add(reading.EnergyJ)
	}

	return reg
}

func gaugeVec(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: name, Help: help}, metricLabels)
}

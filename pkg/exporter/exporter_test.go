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

package exporter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/metermon/pkg/logger"
	"github.com/carverauto/metermon/pkg/models"
)

var errScrape = errors.New("scrape failed")

type fakeSource struct {
	readings []models.CanonicalReading
	err      error
}

func (f *fakeSource) Readings(_ context.Context) ([]models.CanonicalReading, error) {
	return f.readings, f.err
}

func scrape(t *testing.T, source *fakeSource) *httptest.ResponseRecorder {
	t.Helper()

	e := New(source, logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	return rec
}

func TestExportsAllMetricFamilies(t *testing.T) {
	source := &fakeSource{
		readings: []models.CanonicalReading{
			{
				DeviceAlias: "kitchen",
				DeviceID:    "dev-a",
				VoltageV:    120.5,
				CurrentA:    0.5,
				PowerW:      60.25,
				EnergyJ:     5_400_000,
			},
		},
	}

	rec := scrape(t, source)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()

	assert.Contains(t, body, `device_electric_potential_volts{device_alias="kitchen",device_id="dev-a"} 120.5`)
	assert.Contains(t, body, `device_electric_current_amperes{device_alias="kitchen",device_id="dev-a"} 0.5`)
	assert.Contains(t, body, `device_electric_power_watts{device_alias="kitchen",device_id="dev-a"} 60.25`)
	assert.Contains(t, body, `device_electric_energy_joules_total{device_alias="kitchen",device_id="dev-a"} 5.4e+06`)
}

func TestMultipleDevicesGetDistinctSeries(t *testing.T) {
	source := &fakeSource{
		readings: []models.CanonicalReading{
			{DeviceAlias: "kitchen", DeviceID: "dev-a", PowerW: 60},
			{DeviceAlias: "garage", DeviceID: "dev-b", PowerW: 1500},
		},
	}

	rec := scrape(t, source)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()

	assert.Contains(t, body, `device_electric_power_watts{device_alias="kitchen",device_id="dev-a"} 60`)
	assert.Contains(t, body, `device_electric_power_watts{device_alias="garage",device_id="dev-b"} 1500`)
}

func TestSourceErrorDegradesToEmptyExposition(t *testing.T) {
	rec := scrape(t, &fakeSource{err: errScrape})

	// per-scrape acquisition failure is not an HTTP failure
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "device_electric")
}

func TestNoDevicesYieldsEmptySeries(t *testing.T) {
	rec := scrape(t, &fakeSource{})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "device_alias")
}

func TestOpenMetricsNegotiation(t *testing.T) {
	source := &fakeSource{
		readings: []models.CanonicalReading{{DeviceAlias: "kitchen", DeviceID: "dev-a", PowerW: 60}},
	}

	e := New(source, logger.NewTestLogger())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/openmetrics-text; version=1.0.0")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/openmetrics-text")
	assert.Contains(t, rec.Body.String(), "# EOF")
}

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

// Package config loads process configuration from a JSON file with sane
// defaults when no file is supplied.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/carverauto/metermon/pkg/cloud"
	"github.com/carverauto/metermon/pkg/logger"
)

// Acquisition modes.
const (
	ModeLocal = "local"
	ModeCloud = "cloud"
)

const (
	// DefaultListenAddr is where the metrics endpoint binds.
	DefaultListenAddr = "[::1]:12345"

	defaultProbeWait     = 500 * time.Millisecond
	defaultForgetTimeout = 30 * time.Minute
)

var (
	errInvalidMode       = errors.New("mode must be \"local\" or \"cloud\"")
	errInvalidListenAddr = errors.New("invalid listen address")
)

// Duration unmarshals from a JSON duration string like "500ms".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string

	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	if s == "" {
		*d = Duration(0)
		return nil
	}

	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}

	*d = Duration(dur)

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the full process configuration.
type Config struct {
	ListenAddr    string         `json:"listen_addr"`
	Mode          string         `json:"mode"`
	BroadcastAddr string         `json:"broadcast_addr"`
	ProbeWait     Duration       `json:"probe_wait"`
	ForgetTimeout Duration       `json:"forget_timeout"`
	Cloud         cloud.Config   `json:"cloud"`
	Logging       *logger.Config `json:"logging"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		ListenAddr:    DefaultListenAddr,
		Mode:          ModeLocal,
		ProbeWait:     Duration(defaultProbeWait),
		ForgetTimeout: Duration(defaultForgetTimeout),
	}
}

// Load reads a JSON config file. An empty path or a missing file yields the
// defaults; a present but unparsable file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	cfg.applyDefaults()

	return cfg, nil
}

// ApplyEnv overlays cloud credentials from the environment. Environment
// values win over file values so secrets can stay out of the config file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("METERMON_CLOUD_USERNAME"); v != "" {
		c.Cloud.Username = v
	}

	if v := os.Getenv("METERMON_CLOUD_PASSWORD"); v != "" {
		c.Cloud.Password = v
	}
}

// Validate checks the fields the process cannot start without.
func (c *Config) Validate() error {
	if c.Mode != ModeLocal && c.Mode != ModeCloud {
		return fmt.Errorf("%w: got %q", errInvalidMode, c.Mode)
	}

	if _, err := net.ResolveTCPAddr("tcp", c.ListenAddr); err != nil {
		return fmt.Errorf("%w: %q: %v", errInvalidListenAddr, c.ListenAddr, err)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}

	if c.Mode == "" {
		c.Mode = ModeLocal
	}

	if c.ProbeWait == 0 {
		c.ProbeWait = Duration(defaultProbeWait)
	}

	if c.ForgetTimeout == 0 {
		c.ForgetTimeout = Duration(defaultForgetTimeout)
	}
}

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

package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/metermon/pkg/logger"
)

func TestLoadEmptyPathYieldsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.ProbeWait))
	assert.Equal(t, 30*time.Minute, time.Duration(cfg.ForgetTimeout))
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
}

func TestLoadParsesDurationsAndOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"listen_addr": "127.0.0.1:9100",
		"mode": "cloud",
		"probe_wait": "750ms",
		"forget_timeout": "1h",
		"cloud": {"username": "u@example.com", "password": "pw"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9100", cfg.ListenAddr)
	assert.Equal(t, ModeCloud, cfg.Mode)
	assert.Equal(t, 750*time.Millisecond, time.Duration(cfg.ProbeWait))
	assert.Equal(t, time.Hour, time.Duration(cfg.ForgetTimeout))
	assert.Equal(t, "u@example.com", cfg.Cloud.Username)
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": "127.0.0.1:9100"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ModeLocal, cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, time.Duration(cfg.ProbeWait))
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := writeConfig(t, `{"listen_addr": `)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `{"probe_wait": "soon"}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnvOverlaysCredentials(t *testing.T) {
	t.Setenv("METERMON_CLOUD_USERNAME", "env@example.com")
	t.Setenv("METERMON_CLOUD_PASSWORD", "env-secret")

	cfg := Default()
	cfg.Cloud.Username = "file@example.com"
	cfg.ApplyEnv()

	assert.Equal(t, "env@example.com", cfg.Cloud.Username)
	assert.Equal(t, "env-secret", cfg.Cloud.Password)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"bad mode", func(c *Config) { c.Mode = "carrier-pigeon" }, true},
		{"bad listen addr", func(c *Config) { c.ListenAddr = "not an address:::" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWatchFiresOnRewrite(t *testing.T) {
	path := writeConfig(t, `{"probe_wait": "500ms"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got atomic.Value

	err := Watch(ctx, path, logger.NewTestLogger(), func(cfg *Config) {
		got.Store(time.Duration(cfg.ProbeWait))
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"probe_wait": "900ms"}`), 0o600))

	assert.Eventually(t, func() bool {
		v, ok := got.Load().(time.Duration)
		return ok && v == 900*time.Millisecond
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatchKeepsPreviousConfigOnBadReload(t *testing.T) {
	path := writeConfig(t, `{"probe_wait": "500ms"}`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64

	err := Watch(ctx, path, logger.NewTestLogger(), func(*Config) {
		calls.Add(1)
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{broken`), 0o600))

	// give the watcher a moment; the broken rewrite must not reach onChange
	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "metermon.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

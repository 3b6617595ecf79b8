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

// Package cloud acquires device readings through the vendor relay API instead
// of local discovery. It implements the same acquisition capability as the
// reconciliation engine: list currently reachable devices with their
// readings. An expired session is re-established exactly once per call before
// the error propagates.
package cloud

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/metermon/pkg/emeter"
	"github.com/carverauto/metermon/pkg/logger"
	"github.com/carverauto/metermon/pkg/models"
)

const (
	// DefaultEndpoint is the vendor relay the devices register with.
	DefaultEndpoint = "https://wap.tplinkcloud.com/"

	// sessionExpiredCode is the relay's error code for a stale token.
	sessionExpiredCode = -20651

	defaultAppName     = "metermon"
	defaultHTTPTimeout = 10 * time.Second

	emeterRequest = `{"emeter":{"get_realtime":{}}}`
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	errEmptyAuthResult      = errors.New("relay auth returned no result")
	errEmptyResult          = errors.New("relay returned no result")
	errEmptyEmeterResult    = errors.New("passthrough response carried no emeter data")
	errRelay                = errors.New("relay error")
	errMissingCredentials   = errors.New("cloud username and password are required")
	errUnexpectedHTTPStatus = errors.New("unexpected relay HTTP status")
)

// Config holds relay connection settings. Endpoint and AppName default when
// empty; credentials are mandatory.
type Config struct {
	Endpoint string `json:"endpoint"`
	AppName  string `json:"app_name"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Client is an authenticated relay session. Safe for concurrent scrapes; the
// token is the only shared state.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     logger.Logger

	mu    sync.Mutex
	token string
}

// NewClient creates a relay client. It does not log in; the first call that
// needs a token does.
func NewClient(config Config, log logger.Logger) (*Client, error) {
	if config.Username == "" || config.Password == "" {
		return nil, errMissingCredentials
	}

	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}

	if config.AppName == "" {
		config.AppName = defaultAppName
	}

	return &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		config:     config,
		logger:     log,
	}, nil
}

// Login authenticates against the relay and stores the session token.
func (c *Client) Login(ctx context.Context) error {
	resp, err := c.query(ctx, "", apiRequest{
		Method: "login",
		Params: authParams{
			AppType:       c.config.AppName,
			CloudUserName: c.config.Username,
			CloudPassword: c.config.Password,
			TerminalUUID:  uuid.NewString(),
		},
	})
	if err != nil {
		return err
	}

	if resp.ErrorCode != 0 {
		return fmt.Errorf("%w: login failed: code=%d msg=%q", errRelay, resp.ErrorCode, resp.Message)
	}

	var auth authResult
	if err := json.Unmarshal(resp.Result, &auth); err != nil || auth.Token == "" {
		return errEmptyAuthResult
	}

	c.mu.Lock()
	c.token = auth.Token
	c.mu.Unlock()

	return nil
}

// DeviceList returns the devices registered to the account.
func (c *Client) DeviceList(ctx context.Context) ([]DeviceEntry, error) {
	var result deviceListResult

	if err := c.authedQuery(ctx, apiRequest{Method: "getDeviceList", Params: struct{}{}}, &result); err != nil {
		return nil, err
	}

	return result.DeviceList, nil
}

// Emeter fetches one device's instantaneous readings through the relay's
// double-encoded passthrough envelope.
func (c *Client) Emeter(ctx context.Context, deviceID string) (*models.RawRealtime, error) {
	var result passthroughResult

	req := apiRequest{
		Method: "passthrough",
		Params: passthroughParams{DeviceID: deviceID, RequestData: emeterRequest},
	}

	if err := c.authedQuery(ctx, req, &result); err != nil {
		return nil, err
	}

	var envelope emeterEnvelope
	if err := json.Unmarshal([]byte(result.ResponseData), &envelope); err != nil {
		return nil, fmt.Errorf("decoding passthrough response %q: %w", result.ResponseData, err)
	}

	if envelope.Emeter.GetRealtime == nil {
		return nil, errEmptyEmeterResult
	}

	return envelope.Emeter.GetRealtime, nil
}

// Readings implements the acquisition capability: list devices, query each
// emeter concurrently, normalize. Per-device failures are logged and skipped;
// only a failed listing fails the scrape.
func (c *Client) Readings(ctx context.Context) ([]models.CanonicalReading, error) {
	devices, err := c.DeviceList(ctx)
	if err != nil {
		return nil, err
	}

	readings := make([]models.CanonicalReading, len(devices))
	ok := make([]bool, len(devices))

	var g errgroup.Group

	for i, device := range devices {
		i, device := i, device

		g.Go(func() error {
			realtime, err := c.Emeter(ctx, device.DeviceID)
			if err != nil {
				c.logger.Warn().Err(err).
					Str("device_id", device.DeviceID).
					Str("alias", device.Alias).
					Msg("emeter query failed")

				return nil
			}

			readings[i] = emeter.Reading(&models.RawDeviceResponse{
				Alias:    device.Alias,
				DeviceID: device.DeviceID,
				Realtime: realtime,
			})
			ok[i] = true

			return nil
		})
	}

	_ = g.Wait()

	out := make([]models.CanonicalReading, 0, len(devices))

	for i, reading := range readings {
		if ok[i] {
			out = append(out, reading)
		}
	}

	return out, nil
}

// authedQuery sends an authenticated request, logging in first if no session
// exists and retrying exactly once when the relay reports the session
// expired. Any other relay error code propagates.
func (c *Client) authedQuery(ctx context.Context, req apiRequest, out interface{}) error {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()

	if token == "" {
		if err := c.Login(ctx); err != nil {
			return err
		}

		c.mu.Lock()
		token = c.token
		c.mu.Unlock()
	}

	resp, err := c.query(ctx, token, req)
	if err != nil {
		return err
	}

	if resp.ErrorCode == sessionExpiredCode {
		c.logger.Info().Msg("relay session expired, re-authenticating")

		if err := c.Login(ctx); err != nil {
			return err
		}

		c.mu.Lock()
		token = c.token
		c.mu.Unlock()

		resp, err = c.query(ctx, token, req)
		if err != nil {
			return err
		}
	}

	if resp.ErrorCode != 0 {
		return fmt.Errorf("%w: %s failed: code=%d msg=%q", errRelay, req.Method, resp.ErrorCode, resp.Message)
	}

	if resp.Result == nil {
		return fmt.Errorf("%w: %s", errEmptyResult, req.Method)
	}

	return json.Unmarshal(resp.Result, out)
}

// query performs one HTTP round trip against the relay.
func (c *Client) query(ctx context.Context, token string, req apiRequest) (*apiResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", req.Method, err)
	}

	uri := c.config.Endpoint
	if token != "" {
		uri += "?token=" + token
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", req.Method, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", req.Method, err)
	}

	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Error().Err(err).Msg("failed to close relay response body")
		}
	}()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedHTTPStatus, httpResp.StatusCode)
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", req.Method, err)
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", req.Method, err)
	}

	return &resp, nil
}

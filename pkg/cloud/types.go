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

package cloud

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/carverauto/metermon/pkg/models"
)

// apiRequest is the envelope every relay call is wrapped in.
type apiRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// apiResponse is the relay's generic answer. Result stays raw until the
// caller knows which shape to decode it into.
type apiResponse struct {
	ErrorCode int                 `json:"error_code"`
	Message   string              `json:"msg"`
	Result    jsoniter.RawMessage `json:"result"`
}

type authParams struct {
	AppType       string `json:"appType"`
	CloudUserName string `json:"cloudUserName"`
	CloudPassword string `json:"cloudPassword"`
	TerminalUUID  string `json:"terminalUUID"`
}

type authResult struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	Token     string `json:"token"`
}

type deviceListResult struct {
	DeviceList []DeviceEntry `json:"deviceList"`
}

// DeviceEntry is one device as the relay lists it.
type DeviceEntry struct {
	Alias           string `json:"alias"`
	Status          int    `json:"status"`
	Model           string `json:"deviceModel"`
	DeviceID        string `json:"deviceId"`
	HardwareVersion string `json:"deviceHwVer"`
	FirmwareVersion string `json:"fwVer"`
}

// passthroughParams carry a device-bound request. RequestData is a JSON
// document serialized into a string, giving the relay's double-encoded
// envelope.
type passthroughParams struct {
	DeviceID    string `json:"deviceId"`
	RequestData string `json:"requestData"`
}

type passthroughResult struct {
	ResponseData string `json:"responseData"`
}

// emeterEnvelope is the shape inside a passthrough ResponseData string.
type emeterEnvelope struct {
	Emeter struct {
		GetRealtime *models.RawRealtime `json:"get_realtime"`
	} `json:"emeter"`
}

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

package probe

import "errors"

var (
	// ErrTimeout marks a unicast probe that did not complete within its wait window.
	ErrTimeout = errors.New("probe timed out")

	// ErrConnection marks connect or read/write failure against an endpoint.
	ErrConnection = errors.New("probe connection failed")

	// ErrDecode marks a reply that revealed to structurally invalid JSON.
	ErrDecode = errors.New("probe reply decode failed")
)

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
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/carverauto/metermon/pkg/logger"
)

// Watch reloads the config file whenever it is rewritten and hands the new
// config to onChange. The parent directory is watched rather than the file
// itself so editors and config managers that replace the file atomically are
// still caught. A file that reloads but no longer parses is logged and the
// previous config stays in effect. Watch returns once the watcher is
// installed; the loop stops when ctx is cancelled.
func Watch(ctx context.Context, path string, log logger.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()

		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close config watcher")
			}
		}()

		target, _ := filepath.Abs(path)

		for {
			select {
			case <-ctx.Done():
				return

			case event, okCh := <-watcher.Events:
				if !okCh {
					return
				}

				name, _ := filepath.Abs(event.Name)
				if name != target {
					continue
				}

				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				cfg, err := Load(path)
				if err != nil {
					log.Warn().Err(err).Msg("config reload failed, keeping previous config")
					continue
				}

				log.Info().Str("path", path).Msg("config reloaded")
				onChange(cfg)

			case err, okCh := <-watcher.Errors:
				if !okCh {
					return
				}

				log.Warn().Err(err).Msg("config watcher error")
			}
		}
	}()

	return nil
}

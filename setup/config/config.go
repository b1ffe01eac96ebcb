// Copyright 2026 New Vector Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only OR LicenseRef-Element-Commercial
// Please see LICENSE files in the repository root for full details.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// RoomSync is the configuration of the sync reconciliation engine.
type RoomSync struct {
	// UserID is the fully qualified Matrix ID of the local user. Used
	// to recognize the user's own events for local-echo reconciliation.
	UserID string `yaml:"user_id"`

	// MaxRoomsPerBatch bounds the number of joined rooms folded into a
	// single storage transaction during an initial sync. Zero disables
	// batching. Merge semantics are identical per room whether the
	// initial sync is batched or not.
	MaxRoomsPerBatch int `yaml:"max_rooms_per_batch"`

	// TypingTimeoutMS is how long, in milliseconds, a typing signal is
	// considered live without a refreshing sync.
	TypingTimeoutMS int64 `yaml:"typing_timeout_ms"`

	Threads   Threads   `yaml:"threads"`
	JetStream JetStream `yaml:"jetstream"`
}

// Threads configures thread bookkeeping.
type Threads struct {
	// Enabled is the user-facing feature flag for thread messaging.
	Enabled bool `yaml:"enabled"`
	// ServerCapability reflects whether the homeserver advertises
	// native threading. Thread summaries are only aggregated when both
	// flags are set.
	ServerCapability bool `yaml:"server_capability"`
}

// JetStream configures the optional NATS live-event sink.
type JetStream struct {
	Enabled       bool     `yaml:"enabled"`
	Addresses     []string `yaml:"addresses"`
	SubjectPrefix string   `yaml:"subject_prefix"`
}

// TypingTimeout returns the typing decay window as a duration.
func (c *RoomSync) TypingTimeout() time.Duration {
	return time.Duration(c.TypingTimeoutMS) * time.Millisecond
}

func (c *RoomSync) Defaults() {
	c.MaxRoomsPerBatch = 100
	c.TypingTimeoutMS = 30_000
	c.Threads.Enabled = true
	c.Threads.ServerCapability = false
	c.JetStream.Enabled = false
	c.JetStream.SubjectPrefix = "roomsync"
}

func (c *RoomSync) Verify(configErrs *ConfigErrors) {
	checkNotEmpty(configErrs, "user_id", c.UserID)
	if c.MaxRoomsPerBatch < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", "max_rooms_per_batch", c.MaxRoomsPerBatch))
	}
	if c.JetStream.Enabled && len(c.JetStream.Addresses) == 0 {
		configErrs.Add(fmt.Sprintf("missing config key %q", "jetstream.addresses"))
	}
}

// ConfigErrors aggregates problems found while verifying a config, so
// a user sees every mistake in one pass rather than one per run.
type ConfigErrors []string

func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf("%s (and %d other problems)", errs[0], len(errs)-1)
}

func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// Load reads and verifies a YAML configuration file.
func Load(path string) (*RoomSync, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg RoomSync
	cfg.Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	var configErrs ConfigErrors
	cfg.Verify(&configErrs)
	if len(configErrs) > 0 {
		return nil, configErrs
	}
	return &cfg, nil
}

// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runabout.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
project: "checkout"
api_token: "tok"
ingest:
  type: "redis"
  addr: "127.0.0.1:6379"
control_plane:
  type: "static"
  instructions:
    - "example.com/shop.Cart#Checkout"
agent:
  poll_interval: "30s"
  rate_limit: 5
log:
  level: "debug"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Project != "checkout" {
		t.Errorf("Project: got %q", cfg.Project)
	}
	if cfg.Ingest.Type != "redis" || cfg.Ingest.Addr != "127.0.0.1:6379" {
		t.Errorf("Ingest: got %+v", cfg.Ingest)
	}
	if cfg.Ingest.QueueSize != 1024 {
		t.Errorf("Ingest.QueueSize default: got %d", cfg.Ingest.QueueSize)
	}
	if len(cfg.ControlPlane.Instructions) != 1 {
		t.Errorf("ControlPlane.Instructions: got %v", cfg.ControlPlane.Instructions)
	}
	if cfg.Agent.PollInterval != "30s" || cfg.Agent.RateLimit != 5 {
		t.Errorf("Agent: got %+v", cfg.Agent)
	}
	if !cfg.AgentEnabled() {
		t.Error("AgentEnabled should default to true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level: got %q", cfg.Log.Level)
	}
	if cfg.Admin.Port != 7070 {
		t.Errorf("Admin.Port default: got %d", cfg.Admin.Port)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeConfig(t, "project: demo\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Ingest.Type != "http" || cfg.Ingest.URL != DefaultIngestURL {
		t.Errorf("Ingest defaults: got %+v", cfg.Ingest)
	}
	if cfg.ControlPlane.Type != "none" {
		t.Errorf("ControlPlane.Type default: got %q", cfg.ControlPlane.Type)
	}
	if cfg.Relay.Concurrency != 2 || cfg.Relay.Target.Type != "http" || cfg.Relay.ClaimLease != "5m" {
		t.Errorf("Relay defaults: got %+v", cfg.Relay)
	}
}

func TestLoadConfig_EnvToken(t *testing.T) {
	t.Setenv("RUNABOUT_TEST_TOKEN", "secret-token")
	path := writeConfig(t, "project: demo\napi_token: \"${RUNABOUT_TEST_TOKEN}\"\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.APIToken != "secret-token" {
		t.Errorf("APIToken: got %q", cfg.APIToken)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing project", "ingest:\n  type: http\n"},
		{"postgres without dsn", "project: p\ningest:\n  type: postgres\n"},
		{"unknown ingest", "project: p\ningest:\n  type: kafka\n"},
		{"http control plane without url", "project: p\ncontrol_plane:\n  type: http\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfig(t, tt.body)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

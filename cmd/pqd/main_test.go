package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mattjoyce/pqd/internal/dispatch"
	"github.com/mattjoyce/pqd/internal/gsettings"
	"github.com/mattjoyce/pqd/internal/log"
	"github.com/mattjoyce/pqd/internal/registry"
	"github.com/mattjoyce/pqd/internal/wire"
)

func captureOutputWithExitCode(t *testing.T, run func() int) (int, string, string) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stdout failed: %v", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe stderr failed: %v", err)
	}

	os.Stdout = stdoutW
	os.Stderr = stderrW

	done := make(chan struct{})
	var stdoutBytes, stderrBytes []byte
	go func() {
		stdoutBytes, _ = io.ReadAll(stdoutR)
		stderrBytes, _ = io.ReadAll(stderrR)
		close(done)
	}()

	code := run()

	_ = stdoutW.Close()
	_ = stderrW.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr
	<-done

	_ = stdoutR.Close()
	_ = stderrR.Close()

	return code, string(stdoutBytes), string(stderrBytes)
}

// writeSimConfig writes a config that talks to the simulated service and
// keeps all state under a temp dir.
func writeSimConfig(t *testing.T, revision string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.db")
	body := `
service:
  log_level: error
binder:
  device: sim
  revision: ` + revision + `
state:
  path: ` + statePath + `
settings:
  binary: ` + filepath.Join(dir, "no-gsettings") + `
  watch: false
dbus:
  enabled: false
privacy:
  enabled: false
`
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path, statePath
}

func TestRunReplayAppliesEverySetter(t *testing.T) {
	configPath, statePath := writeSimConfig(t, "legacy")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runReplay([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runReplay() code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Replayed 18 setting(s): 18 applied, 0 failed, 0 skipped") {
		t.Fatalf("unexpected summary: %s", stdout)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state database not created: %v", err)
	}
}

func TestRunReplayJSON(t *testing.T) {
	configPath, _ := writeSimConfig(t, "checked")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runReplay([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runReplay() code = %d, stderr: %s", code, stderr)
	}

	var sum struct {
		Total   int `json:"total"`
		Applied int `json:"applied"`
		Keys    []struct {
			Key    string `json:"key"`
			Source string `json:"source"`
		} `json:"keys"`
	}
	if err := json.Unmarshal([]byte(stdout), &sum); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, stdout)
	}
	if sum.Total == 0 || sum.Applied != sum.Total {
		t.Fatalf("summary = %+v", sum)
	}
	for _, k := range sum.Keys {
		if k.Source != "default" {
			t.Fatalf("key %s source = %q, want default on first run", k.Key, k.Source)
		}
	}
}

func TestRunReplaySecondRunReadsStore(t *testing.T) {
	configPath, _ := writeSimConfig(t, "legacy")

	for i := 0; i < 2; i++ {
		code, stdout, stderr := captureOutputWithExitCode(t, func() int {
			return runReplay([]string{"--config", configPath, "--json"})
		})
		if code != 0 {
			t.Fatalf("run %d: code = %d, stderr: %s", i, code, stderr)
		}
		if i == 1 && !strings.Contains(stdout, `"source": "store"`) {
			t.Fatalf("second replay did not read the store: %s", stdout)
		}
	}
}

func TestRunReplayPrefersLastAppliedValue(t *testing.T) {
	configPath, _ := writeSimConfig(t, "checked")
	dir := filepath.Dir(configPath)

	// A settings source whose schema still holds 0 for every key.
	stale := filepath.Join(dir, "gsettings")
	if err := os.WriteFile(stale, []byte("#!/bin/sh\necho 0\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	body := strings.Replace(string(data), filepath.Join(dir, "no-gsettings"), stale, 1)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	c, err := openCore(ctx, cfg, log.WithComponent("test"))
	if err != nil {
		t.Fatalf("openCore: %v", err)
	}
	reader := gsettings.NewReader(c.catalog(), cfg.Settings.Binary)
	d := dispatch.New(c.reg, c.handle, c.store, reader)
	if out := d.Apply(ctx, registry.OpSetPQMode, wire.Int32(1)); !out.OK() {
		t.Fatalf("Apply: %+v", out)
	}
	c.Close()

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runReplay([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runReplay() code = %d, stderr: %s", code, stderr)
	}
	var sum struct {
		Keys []struct {
			Key    string `json:"key"`
			Value  int64  `json:"value"`
			Source string `json:"source"`
		} `json:"keys"`
	}
	if err := json.Unmarshal([]byte(stdout), &sum); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, stdout)
	}
	var seen, fromSource int
	for _, k := range sum.Keys {
		switch {
		case k.Key == "pq-mode":
			seen++
			if k.Value != 1 || k.Source != "store" {
				t.Fatalf("pq-mode replayed %d from %s, want 1 from store", k.Value, k.Source)
			}
		case k.Source == "gsettings":
			fromSource++
		}
	}
	if seen != 1 {
		t.Fatalf("pq-mode not replayed: %s", stdout)
	}
	if fromSource == 0 {
		t.Fatalf("keys never applied should fall back to the settings source: %s", stdout)
	}
}

func TestRunStartFailsWhenServiceUnavailable(t *testing.T) {
	configPath, _ := writeSimConfig(t, "checked")
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(t.TempDir(), "hwbinder")
	body := strings.Replace(string(data), "device: sim", "device: "+missing, 1)
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	code, _, _ := captureOutputWithExitCode(t, func() int {
		return runStart([]string{"--config", configPath})
	})
	if code != 1 {
		t.Fatalf("runStart() code = %d, want 1", code)
	}
}

func TestRunDoctorSimulated(t *testing.T) {
	configPath, _ := writeSimConfig(t, "checked")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath})
	})
	if code != 0 {
		t.Fatalf("runDoctor() code = %d, stdout: %s, stderr: %s", code, stdout, stderr)
	}
	if !strings.Contains(stdout, "Installation usable") {
		t.Fatalf("unexpected report: %s", stdout)
	}
	if !strings.Contains(stdout, "registry ") {
		t.Fatalf("report missing registry digest: %s", stdout)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath, "--strict"})
	})
	if code != 2 {
		t.Fatalf("runDoctor(--strict) code = %d, want 2", code)
	}
}

func TestRunDoctorJSON(t *testing.T) {
	configPath, _ := writeSimConfig(t, "checked")

	code, stdout, _ := captureOutputWithExitCode(t, func() int {
		return runDoctor([]string{"--config", configPath, "--json"})
	})
	if code != 0 {
		t.Fatalf("runDoctor() code = %d", code)
	}
	var result struct {
		Valid  bool   `json:"valid"`
		Digest string `json:"registry_digest"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("decode result: %v\n%s", err, stdout)
	}
	if !result.Valid || result.Digest == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestRunConfigGet(t *testing.T) {
	configPath, _ := writeSimConfig(t, "legacy")

	code, stdout, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"get", "--config", configPath, "binder.revision"})
	})
	if code != 0 {
		t.Fatalf("config get code = %d, stderr: %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "legacy" {
		t.Fatalf("config get = %q, want legacy", stdout)
	}

	code, _, _ = captureOutputWithExitCode(t, func() int {
		return runConfigNoun([]string{"get", "--config", configPath, "binder.nope"})
	})
	if code != 1 {
		t.Fatalf("missing path code = %d, want 1", code)
	}
}

func TestRunConfigNounUsage(t *testing.T) {
	code, _, stderr := captureOutputWithExitCode(t, func() int {
		return runConfigNoun(nil)
	})
	if code != 1 || !strings.Contains(stderr, "Usage: pqd config get") {
		t.Fatalf("code = %d, stderr = %q", code, stderr)
	}
}

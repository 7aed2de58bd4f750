package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("BOT_PASSWORD", "hunter2")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "farmbot.yaml"), `
server:
  host: mc.example.net
timings:
  watchdog: 90s
shop:
  period: 2m
`)
	writeFile(t, filepath.Join(dir, "worker_2", "config.yaml"), "homeCommand: /team home\n")
	writeFile(t, filepath.Join(dir, "worker_1", "config.yaml"), "username: zlkm_worker_1\npassword: secret\n")
	writeFile(t, filepath.Join(dir, "template", "config.yaml"), "username: template\n")
	writeFile(t, filepath.Join(dir, "disabled", "config.yaml"), "enabled: false\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	fb := cfg.Farmbot
	if fb.Server.Host != "mc.example.net" || fb.Server.Port != 25565 {
		t.Errorf("unexpected server %+v", fb.Server)
	}
	if fb.Timings.Watchdog != 90*time.Second || fb.Timings.ReconnectStep != time.Minute {
		t.Errorf("unexpected timings %+v", fb.Timings)
	}
	if fb.Shop.Period != 2*time.Minute || fb.Shop.SettleDelay != 3*time.Second || fb.Shop.Recipient != "zlkm_" {
		t.Errorf("unexpected shop settings %+v", fb.Shop)
	}
	if fb.Zones.Lobby != "Welcome to PINOYCRAFT" {
		t.Errorf("unexpected zone markers %+v", fb.Zones)
	}

	if len(cfg.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(cfg.Agents))
	}
	first, second := cfg.Agents[0], cfg.Agents[1]
	if first.Name != "worker_1" || first.Username != "zlkm_worker_1" || first.Password != "secret" || first.HomeCommand != "/home" {
		t.Errorf("unexpected first agent %+v", first)
	}
	if second.Username != "worker_2" || second.Password != "hunter2" || second.HomeCommand != "/team home" {
		t.Errorf("unexpected second agent %+v", second)
	}
	if _, ok := cfg.Agent("template"); ok {
		t.Error("template must not be loaded as an agent")
	}
}

func TestLoadWithoutAgents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "farmbot.yaml"), "debug:\n  log: true\n")

	if _, err := Load(dir); !errors.Is(err, ErrNoAgents) {
		t.Fatalf("expected ErrNoAgents, got %v", err)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "farmbot.yaml"), "timings:\n  maxReconnectAttempts: -1\n")
	writeFile(t, filepath.Join(dir, "a", "config.yaml"), "username: a\n")

	if _, err := Load(dir); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDiscordDisabledWithoutCredentials(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "farmbot.yaml"), "discord:\n  enabled: true\n  channelId: \"123\"\n")
	writeFile(t, filepath.Join(dir, "a", "config.yaml"), "username: a\n")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Farmbot.Discord.Enabled {
		t.Fatal("discord without token should be disabled")
	}
}

func TestCreateFromTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "template", "config.yaml"), "username: changeme\n")

	if err := CreateFromTemplate(dir, "worker_3"); err != nil {
		t.Fatalf("CreateFromTemplate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "worker_3", "config.yaml")); err != nil {
		t.Fatalf("template not copied: %v", err)
	}
	if err := CreateFromTemplate(dir, "worker_3"); err == nil {
		t.Fatal("expected error for existing configuration")
	}
	if err := CreateFromTemplate(dir, ""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

package config

import "testing"

func TestDefaultsWinWithNoOverrides(t *testing.T) {
	flags, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	eff := LoadEffectiveConfig(flags, nil, false, &EnvConfig{values: map[string]string{}})
	if eff.Address != "127.0.0.1:11311" {
		t.Fatalf("got %q", eff.Address)
	}
	if eff.Source["address"] != "default" {
		t.Fatalf("got source %q", eff.Source["address"])
	}
}

func TestExplicitFlagWinsOverFileAndEnv(t *testing.T) {
	flags, err := ParseFlags([]string{"--address", "0.0.0.0:9999"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	fileAddr := "10.0.0.1:1"
	fc := &fileConfig{Address: &fileAddr}
	env := &EnvConfig{values: map[string]string{"address": "1.2.3.4:1"}}

	eff := LoadEffectiveConfig(flags, fc, true, env)
	if eff.Address != "0.0.0.0:9999" || eff.Source["address"] != "flag" {
		t.Fatalf("got %q from %q", eff.Address, eff.Source["address"])
	}
}

func TestFileWinsOverEnvWhenFlagNotExplicit(t *testing.T) {
	flags, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	fileAddr := "10.0.0.1:1"
	fc := &fileConfig{Address: &fileAddr}
	env := &EnvConfig{values: map[string]string{"address": "1.2.3.4:1"}}

	eff := LoadEffectiveConfig(flags, fc, true, env)
	if eff.Address != "10.0.0.1:1" || eff.Source["address"] != "file" {
		t.Fatalf("got %q from %q", eff.Address, eff.Source["address"])
	}
}

func TestEnvUsedWhenNoFlagOrFile(t *testing.T) {
	flags, err := ParseFlags(nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	env := &EnvConfig{values: map[string]string{"storage-queue-size": "42"}}

	eff := LoadEffectiveConfig(flags, nil, false, env)
	if eff.StorageQueueSize != 42 || eff.Source["storage-queue-size"] != "env" {
		t.Fatalf("got %d from %q", eff.StorageQueueSize, eff.Source["storage-queue-size"])
	}
}

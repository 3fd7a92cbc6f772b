package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper returned error: %v", err)
	}
	if cfg.Node.Host != "localhost" || cfg.Node.Port != 3000 {
		t.Fatalf("unexpected node address %s:%d", cfg.Node.Host, cfg.Node.Port)
	}
	if cfg.Node.PollInterval != 5*time.Second {
		t.Fatalf("unexpected poll interval %v", cfg.Node.PollInterval)
	}
	if cfg.Pipeline.OutputDir != "./odm_results" {
		t.Fatalf("unexpected output dir %q", cfg.Pipeline.OutputDir)
	}
	opts := cfg.Node.DefaultOptions
	if opts["dsm"] != true || opts["orthophoto-resolution"] != 4 || opts["dem-resolution"] != 4 || opts["pc-quality"] != "medium" {
		t.Fatalf("unexpected default options %v", opts)
	}
}

func TestFromViperOptionOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("ODM_DEFAULT_OPTIONS", "pc-quality=high, fast-orthophoto=true, crop=2.5")

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper returned error: %v", err)
	}
	opts := cfg.Node.DefaultOptions
	if opts["pc-quality"] != "high" {
		t.Fatalf("expected override of pc-quality, got %v", opts["pc-quality"])
	}
	if opts["fast-orthophoto"] != true {
		t.Fatalf("expected unknown key to pass through, got %v", opts["fast-orthophoto"])
	}
	if opts["crop"] != 2.5 {
		t.Fatalf("expected float value, got %v", opts["crop"])
	}
	if opts["dsm"] != true {
		t.Fatalf("expected default dsm to survive, got %v", opts["dsm"])
	}
}

func TestParseOptionsKeepsNumbersNumeric(t *testing.T) {
	opts, err := ParseOptions("crop=0,x=1,dsm=TRUE,fast=false,ratio=0.5,mode=t")
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	want := map[string]any{"crop": 0, "x": 1, "dsm": true, "fast": false, "ratio": 0.5, "mode": "t"}
	for key, v := range want {
		if opts[key] != v {
			t.Fatalf("%s = %#v (%T), want %#v (%T)", key, opts[key], opts[key], v, v)
		}
	}
}

func TestParseOptionsRejectsMalformedPair(t *testing.T) {
	if _, err := ParseOptions("dsm"); err == nil {
		t.Fatal("expected error for option without value")
	}
}

func TestDatabaseDSN(t *testing.T) {
	driver, dsn := DatabaseConfig{URL: "postgres://u:p@db/hydra"}.DSN()
	if driver != "pgx" || dsn != "postgres://u:p@db/hydra" {
		t.Fatalf("unexpected url dsn %s %s", driver, dsn)
	}
	driver, dsn = DatabaseConfig{Host: "h", Port: "5432", User: "u", Password: "p", DBName: "d", SSLMode: "disable"}.DSN()
	if driver != "postgres" {
		t.Fatalf("expected lib/pq driver, got %s", driver)
	}
	if dsn != "host=h port=5432 user=u password=p dbname=d sslmode=disable" {
		t.Fatalf("unexpected dsn %q", dsn)
	}
}

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	UseRig     bool            `yaml:"use_rig"`
	Rig        RigConfig       `yaml:"rig"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	UDP        string          `yaml:"udp"`
	HTTPListen string          `yaml:"http_listen"`
	Verbose    bool            `yaml:"verbose"`
	Quiet      bool            `yaml:"quiet"`
}

const (
	defaultSetTimeout      = 900 * time.Millisecond
	defaultTelemetrySource = "tcp://127.0.0.1:7300"
)

func defaultConfig() Config {
	return Config{
		Rig: RigConfig{
			PollInterval: defaultRigPollInterval,
			ReadTimeout:  defaultRigReadTimeout,
			SetTimeout:   defaultSetTimeout,
		},
		Telemetry: TelemetryConfig{
			Source:         defaultTelemetrySource,
			Interval:       defaultTelemetryInterval,
			RequestTimeout: defaultRequestTimeout,
		},
	}
}

// loadConfig reads a YAML file over the defaults. An empty path yields the defaults.
//
//	use_rig: true
//	rig:
//	  port: /dev/ttyUSB0
//	  baud: 57600
//	  follow_mode: true
//	telemetry:
//	  source: tcp://192.168.1.20:7300
//	udp: 10.45.0.1:2345
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	if c.UseRig {
		if c.Rig.Port == "" {
			errs = append(errs, errors.New("missing rig port (e.g. --comport /dev/ttyUSB0)"))
		}
		if c.Rig.Baud <= 0 {
			errs = append(errs, errors.New("missing rig baud rate (e.g. --baud 57600)"))
		}
		if c.Rig.SetTimeout <= 0 {
			errs = append(errs, errors.New("rig set timeout must be positive"))
		}
	}

	if c.UDP != "" {
		if _, _, err := parseUDPTarget(c.UDP); err != nil {
			errs = append(errs, err)
		}
	}

	if c.Telemetry.Source == "" {
		errs = append(errs, errors.New("missing telemetry source"))
	}

	if c.Verbose && c.Quiet {
		errs = append(errs, errors.New("--verbose and --quiet are mutually exclusive"))
	}

	return errors.Join(errs...)
}

// parseUDPTarget checks a hostname:port pair.
func parseUDPTarget(s string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return "", 0, fmt.Errorf("invalid udp target %q, expected hostname:port", s)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in udp target %q, expected 1-65535", s)
	}
	return host, port, nil
}

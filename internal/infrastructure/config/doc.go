// Package config handles loading and validating blegate configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with BLEGATE_* environment variables
//   - Validation of required fields, including the preload iBeacon block
//   - Default value handling
//
// Security Considerations:
//   - Broker passwords and InfluxDB tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Gateway.Topic, cfg.IdleTimeout())
package config

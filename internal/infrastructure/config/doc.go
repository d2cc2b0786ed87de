// Package config handles loading and validating the telemetry agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading device secrets from a dotenv-style secrets file
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The network passphrase, broker host and device certificate belong in
//     the secrets file (SECRET_SSID, SECRET_PASS, SECRET_BROKER,
//     SECRET_CERTIFICATE), not in config.yaml
//   - The secrets file should have restricted permissions (0600)
//   - Private keys never appear in configuration; they live in the secure element
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.MQTT.BrokerAddress())
package config

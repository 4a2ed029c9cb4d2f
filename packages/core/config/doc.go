// Package config handles configuration loading and management for velocitest.
//
// It provides functionality for:
//   - Loading configuration from velocitest.yaml files
//   - Default configuration values
//   - Merging file config with command-line overrides
package config

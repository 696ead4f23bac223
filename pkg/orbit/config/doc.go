// Package config loads the orbit CLI configuration from
// $XDG_CONFIG_HOME/orbit/config.yaml.
package config

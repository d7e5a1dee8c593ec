// Package config defines the settings shared by alarm-server and alarm-client
// and provides helpers to load, validate and save them in YAML format.
//
// Positional command-line arguments (port, interval seconds) override the file;
// ParseIntervalSeconds and PortListenAddress convert them.
package config

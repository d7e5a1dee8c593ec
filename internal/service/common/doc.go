// Package common holds helpers shared by several services.
//
// It provides a gRPC client for the alarm-server admin endpoint with call
// timeouts, and detection of the local user name used as the default client
// identity.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

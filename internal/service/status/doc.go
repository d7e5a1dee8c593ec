// Package status implements `alarm-server status`, which queries a running
// server over its admin endpoint and prints the health status and the latest
// dispatcher snapshot, either as text or as protobuf JSON.
package status

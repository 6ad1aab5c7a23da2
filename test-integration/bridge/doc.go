// Package integration provides integration tests for the ToolHive registry bridge.
// These tests run the complete bridge against a fake Eureka server and validate
// reconciliation, eviction and the status API end to end.
package integration

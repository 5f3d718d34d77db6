// Package helper provides test doubles and fixtures for the kvengine tests:
// spies for the observability interfaces and builders for events and snapshots.
package helper

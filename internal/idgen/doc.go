// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// The kernel uses it for boot identifiers and message ids; callers should
// treat the values as opaque strings.
package idgen

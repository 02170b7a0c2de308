// Package core provides the business logic for time-entry batch imports:
// line parsing, row validation, preview reports, billing-period math, and
// the idempotent import pipeline. This package has no HTTP dependencies and
// can be driven by any transport.
package core

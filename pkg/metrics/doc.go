/*
Package metrics defines and registers the Prometheus metrics this module
exposes: L1 descriptor table occupancy, resolver vote latency, logical-lock
acquire/release counts, finalize duration and outcome, and catalog commit
latency and error counts. Metrics are registered at package init time and
served by Handler, which callers mount on their own HTTP mux.

Timer is a small helper for the common "start a clock, observe a histogram"
pattern used throughout the finalize and resolver packages.
*/
package metrics

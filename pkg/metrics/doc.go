// Package metrics defines and registers the Prometheus metrics exposed by
// vocd's database lifecycle core: registry snapshot churn, database manager
// cycle timing, and bootstrap/drop latency. Handler returns the HTTP handler
// for a caller to mount on its own mux.
package metrics

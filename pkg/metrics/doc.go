// Package metrics defines Prometheus metrics for orbit-server, covering
// session lookups, conversation activity, completion calls and rate limiting.
package metrics

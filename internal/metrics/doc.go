// Package metrics records probe outcomes and latencies with Prometheus
// collectors. A run owns its own registry; the CLI can dump it to a
// node_exporter textfile with WriteTextfile.
package metrics

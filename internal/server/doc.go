// Package server provides the HTTP API: job submission and status,
// transcript retrieval, health and statistics endpoints, and Prometheus
// metrics exposition.
package server

// Package app bootstraps and runs the metamcp process: it wires the stores,
// pools, filter, invalidation machinery, and the HTTP endpoint host, then
// manages the lifecycle from warmup through graceful shutdown.
package app

// Package logstore keeps a bounded in-memory ring of structured, server-scoped
// events with a listener registry for live fan-out.
//
// Connection failures, stderr output from stdio subprocesses, and invalidation
// errors all land here so that operators can inspect recent per-server history
// without an external log pipeline. The ring holds 1000 entries by default and
// evicts the oldest entry on overflow.
package logstore

// Package store defines the persistence interfaces the pool layers consume
// (server configs, namespaces, per-namespace tool statuses) and provides the
// in-memory implementation used by the YAML-file deployment mode.
//
// The pool is stateless across restarts; these stores are its only source of
// truth about what should be running.
package store

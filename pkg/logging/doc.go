// Package logging provides leveled, subsystem-scoped logging for metamcp.
//
// It wraps log/slog with a printf-style API (Debug, Info, Warn, Error) where
// every call names the subsystem that produced it. Registered sinks receive
// every entry in structured form; the in-memory log store uses this to build
// its bounded event ring without a second logging path.
package logging

// Package filter enforces per-namespace tool activation.
//
// A Filter wraps the aggregator's tools/list and tools/call handlers as
// middleware. Listing drops tools whose namespace mapping is INACTIVE;
// calling such a tool returns an isError tool result with a configurable
// message. Status lookups go through a short-TTL cache so a burst of
// requests costs one store query per tool.
//
// Classification fails open: when a name does not parse, no mapping exists,
// or the store is unavailable, the tool stays visible and callable.
package filter

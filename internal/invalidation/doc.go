// Package invalidation keeps the pools in step with store mutations.
//
// Router maps each mutation kind (server created/updated/deleted, namespace
// created/updated/deleted, status toggles, bulk tool refresh) onto the
// minimal set of pool refresh calls. It runs after the mutation has
// committed and never surfaces errors to the mutator.
//
// FileWatcher adds hot reload for the YAML definitions file: on change it
// diffs the new document against the in-memory store, swaps the store, and
// feeds the diff through the router.
package invalidation

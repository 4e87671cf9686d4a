package invalidation

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"metamcp/internal/mcpserver"
	"metamcp/internal/store"
	"metamcp/pkg/logging"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval coalesces the burst of fsnotify events an editor
// or atomic rename produces into one reload.
const DefaultDebounceInterval = 500 * time.Millisecond

// FileWatcher reloads the YAML definitions file when it changes, swaps the
// in-memory store, and dispatches the resulting diff through the router.
type FileWatcher struct {
	mu sync.Mutex

	path     string
	store    *store.InMemoryStore
	router   *Router
	debounce time.Duration

	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopCh  chan struct{}
	running bool
}

// NewFileWatcher creates a watcher over one definitions file.
// debounce <= 0 selects DefaultDebounceInterval.
func NewFileWatcher(path string, s *store.InMemoryStore, router *Router, debounce time.Duration) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}
	return &FileWatcher{
		path:     path,
		store:    s,
		router:   router,
		debounce: debounce,
		stopCh:   make(chan struct{}),
	}
}

// Start begins watching. Watching the parent directory instead of the file
// itself survives atomic replace-by-rename.
func (w *FileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.watcher = watcher
	w.running = true
	w.stopCh = make(chan struct{})

	go w.processEvents(ctx)

	logging.Info("FileWatcher", "Watching %s for definition changes", w.path)
	return nil
}

// Stop halts the watcher.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	close(w.stopCh)
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *FileWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload(ctx)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("FileWatcher", "Watch error: %v", err)
		}
	}
}

func (w *FileWatcher) scheduleReload(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.Reload(ctx)
	})
}

// Reload loads the definitions file, swaps the store, and invalidates
// exactly what changed. A file that fails to load leaves the current state
// untouched.
func (w *FileWatcher) Reload(ctx context.Context) {
	defs, err := store.LoadDefinitions(w.path)
	if err != nil {
		logging.Error("FileWatcher", err, "Keeping previous definitions")
		return
	}

	oldServers, oldNamespaces := w.store.Snapshot()
	newServers := defs.ServerMap()
	newNamespaces := defs.NamespaceMap()

	diff := diffDefinitions(oldServers, oldNamespaces, newServers, newNamespaces)

	// The store must reflect the new world before invalidation rebuilds
	// composites from it.
	w.store.Replace(newServers, newNamespaces)

	w.dispatch(ctx, diff, newNamespaces)
}

type definitionsDiff struct {
	addedServers   []mcpserver.ServerConfig
	updatedServers []mcpserver.ServerConfig
	removedServers []string

	addedNamespaces   []string
	updatedNamespaces []string
	removedNamespaces []string

	// namespacesOfRemovedServers are namespaces that referenced a removed
	// server in the old state, resolved before the store swap.
	namespacesOfRemovedServers []string
}

func diffDefinitions(
	oldServers map[string]mcpserver.ServerConfig, oldNamespaces map[string]store.Namespace,
	newServers map[string]mcpserver.ServerConfig, newNamespaces map[string]store.Namespace,
) definitionsDiff {
	var diff definitionsDiff

	for uuid, cfg := range newServers {
		old, existed := oldServers[uuid]
		switch {
		case !existed:
			diff.addedServers = append(diff.addedServers, cfg)
		case !reflect.DeepEqual(old, cfg):
			diff.updatedServers = append(diff.updatedServers, cfg)
		}
	}
	for uuid := range oldServers {
		if _, still := newServers[uuid]; !still {
			diff.removedServers = append(diff.removedServers, uuid)
		}
	}

	for uuid, ns := range newNamespaces {
		old, existed := oldNamespaces[uuid]
		switch {
		case !existed:
			diff.addedNamespaces = append(diff.addedNamespaces, uuid)
		case !reflect.DeepEqual(old, ns):
			diff.updatedNamespaces = append(diff.updatedNamespaces, uuid)
		}
	}
	for uuid := range oldNamespaces {
		if _, still := newNamespaces[uuid]; !still {
			diff.removedNamespaces = append(diff.removedNamespaces, uuid)
		}
	}

	affected := make(map[string]bool)
	for _, serverUUID := range diff.removedServers {
		for nsUUID, ns := range oldNamespaces {
			for _, mapping := range ns.Servers {
				if mapping.ServerUUID == serverUUID {
					affected[nsUUID] = true
				}
			}
		}
	}
	for nsUUID := range affected {
		diff.namespacesOfRemovedServers = append(diff.namespacesOfRemovedServers, nsUUID)
	}

	return diff
}

func (w *FileWatcher) dispatch(ctx context.Context, diff definitionsDiff, newNamespaces map[string]store.Namespace) {
	for _, cfg := range diff.addedServers {
		w.router.ServerCreated(ctx, cfg)
	}
	for _, cfg := range diff.updatedServers {
		w.router.ServerUpdated(ctx, cfg)
	}
	for _, serverUUID := range diff.removedServers {
		w.router.ServerDeleted(ctx, serverUUID)
	}

	for _, nsUUID := range diff.addedNamespaces {
		w.router.NamespaceCreated(ctx, nsUUID)
	}

	// Namespace-level refreshes, deduplicated: explicit updates plus
	// namespaces that lost a server (the post-swap store no longer links
	// them, so ServerDeleted could not find them).
	refresh := make(map[string]bool)
	for _, nsUUID := range diff.updatedNamespaces {
		refresh[nsUUID] = true
	}
	for _, nsUUID := range diff.namespacesOfRemovedServers {
		if _, still := newNamespaces[nsUUID]; still {
			refresh[nsUUID] = true
		}
	}
	for nsUUID := range refresh {
		w.router.NamespaceUpdated(ctx, nsUUID)
		w.router.ToolStatusToggled(nsUUID)
	}

	for _, nsUUID := range diff.removedNamespaces {
		w.router.NamespaceDeleted(ctx, nsUUID)
	}

	logging.Info("FileWatcher", "Definitions reloaded: servers +%d ~%d -%d, namespaces +%d ~%d -%d",
		len(diff.addedServers), len(diff.updatedServers), len(diff.removedServers),
		len(diff.addedNamespaces), len(refresh), len(diff.removedNamespaces))
}

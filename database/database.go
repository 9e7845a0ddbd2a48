// Package database is the top-level entry point (spec.md §6.4
// "Database-level" operations): it owns the collection registry, the
// shared-state buffer and the background compaction worker, and fulfills
// the worker's compaction requests under each collection's own write lock
// — see spec.md §9 "Worker consistency", strategy (ii).
//
// Grounded on database/database.go's CreateCollection/DropCollection/
// Load/Start/Stop, generalized from its map[string]*collection.Collection
// over flat files to one over this domain's per-collection directories.
package database

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/smoldb/smoldb/collection"
	"github.com/smoldb/smoldb/sharedstate"
	"github.com/smoldb/smoldb/worker"
)

const (
	StatusOpening   = "opening"
	StatusOperating = "operating"
	StatusClosing   = "closing"
)

// Config recognizes the options of spec.md §6.5.
type Config struct {
	Dir            string
	GCEnabled      bool    // default true
	GCTriggerRatio float64 // default 2.0
	BlobThreshold  int     // default 1 MiB
	CacheSize      int     // default 0 (disabled)
	Logger         *log.Logger
}

// Database is the root object: one per open store directory.
type Database struct {
	config Config
	logger *log.Logger

	mu          sync.Mutex
	status      string
	collections map[string]*collection.Collection
	states      map[string]*sharedstate.State

	// gcState is the merged shared-state buffer the background worker
	// watches (spec.md §4.8); it exists regardless of GCEnabled so
	// GetGCStatus always has something to read.
	gcState *sharedstate.State

	worker     *worker.Worker
	workerStop context.CancelFunc
	workerWG   sync.WaitGroup
}

// GCStatus is the Database-level view of spec.md §4.8's GC_STATUS/
// GC_PROGRESS/GC_BYTES_FREED shared-state cells (getGCStatus, spec.md §6.4).
type GCStatus struct {
	Status     string // "idle", "running" or "complete"
	Progress   uint32 // 0-100
	BytesFreed uint64
}

// DefaultConfig applies spec.md §6.5's defaults on top of a Dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:            dir,
		GCEnabled:      true,
		GCTriggerRatio: 2.0,
		BlobThreshold:  1 << 20,
		CacheSize:      0,
	}
}

// Init opens every existing collection under cfg.Dir and starts the
// background worker if GCEnabled.
func Init(cfg Config) (*Database, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	db := &Database{
		config:      cfg,
		logger:      logger,
		status:      StatusOpening,
		collections: map[string]*collection.Collection{},
		states:      map[string]*sharedstate.State{},
		gcState:     sharedstate.New(),
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("smoldb: create database dir: %w", err)
	}

	if err := db.load(); err != nil {
		db.status = StatusClosing
		return nil, err
	}
	db.status = StatusOperating

	if cfg.GCEnabled {
		db.startWorker()
	}

	return db, nil
}

func (db *Database) load() error {
	db.logger.Printf("smoldb: loading database %s...", db.config.Dir)

	return filepath.WalkDir(db.config.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".data") {
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), ".data")

		t0 := time.Now()
		col, err := db.openCollectionLocked(name)
		if err != nil {
			db.logger.Printf("smoldb: ERROR open collection %q: %v", name, err)
			return err
		}
		db.logger.Printf("smoldb: loaded %q (%d docs) in %s", name, col.GetStats().DocumentCount, time.Since(t0))
		return nil
	})
}

func (db *Database) openCollectionLocked(name string) (*collection.Collection, error) {
	state := sharedstate.New()
	col, err := collection.Open(collection.Config{
		BasePath:      db.config.Dir,
		Name:          name,
		BlobThreshold: db.config.BlobThreshold,
		CacheSize:     db.config.CacheSize,
		State:         state,
	})
	if err != nil {
		return nil, err
	}
	db.collections[name] = col
	db.states[name] = state
	return col, nil
}

func (db *Database) startWorker() {
	// All collections share one shared-state buffer's worth of attention,
	// but each collection owns its own State; the worker aggregates across
	// them through CollectionNames/CompactCollection rather than watching
	// one buffer directly. db.gcState represents "the worst ratio across
	// collections" so the 5-second idle check in worker.Worker.Run still
	// has something meaningful to look at, and so GetGCStatus/TriggerGC
	// have the same buffer the worker is actually watching.
	ctx, cancel := context.WithCancel(context.Background())
	db.workerStop = cancel

	w := worker.New(worker.Options{
		State:        db.gcState,
		Requester:    db,
		TriggerRatio: db.config.GCTriggerRatio,
		Logger:       db.logger,
	})
	db.worker = w

	db.workerWG.Add(3)
	go func() {
		defer db.workerWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-w.Events():
				db.logger.Printf("smoldb: background worker error (collection %q): %v", ev.Collection, ev.Err)
			}
		}
	}()

	go func() {
		defer db.workerWG.Done()
		db.publishMergedState(ctx, db.gcState)
	}()
	go func() {
		defer db.workerWG.Done()
		w.Run(ctx)
	}()
}

// publishMergedState periodically folds every collection's counters into
// the worker's shared State so its idle-timeout ratio check has live data
// (spec.md §4.8 "Foreground counterpart... A periodic scheduler (interval
// ≈ 60s) also checks the ratio and triggers" — implemented here instead of
// inside the worker itself, since only the database sees every collection).
func (db *Database) publishMergedState(ctx context.Context, merged *sharedstate.State) {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			db.mu.Lock()
			var worstFileSize, worstLive uint64
			for _, col := range db.collections {
				s := col.GetStats()
				if s.LiveDataSize == 0 {
					continue
				}
				if worstLive == 0 || float64(s.FileSize)/float64(s.LiveDataSize) > float64(worstFileSize)/float64(worstLive) {
					worstFileSize, worstLive = s.FileSize, s.LiveDataSize
				}
			}
			db.mu.Unlock()
			merged.PublishCounters(worstFileSize, worstLive, 0)
		}
	}
}

// CollectionNames implements worker.Requester.
func (db *Database) CollectionNames() ([]string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.sortedCollectionNamesLocked(), nil
}

// sortedCollectionNamesLocked lists every registered collection name in
// sorted order, since Go map iteration order is not stable across calls
// and callers (the worker's compaction sweep, ListCollections) need a
// deterministic listing. Callers must hold db.mu.
func (db *Database) sortedCollectionNamesLocked() []string {
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CompactCollection implements worker.Requester: it routes the worker's
// request through the live foreground Collection instance, under its own
// write lock, instead of opening a second storage/index pair.
func (db *Database) CompactCollection(name string) (int64, error) {
	db.mu.Lock()
	col, ok := db.collections[name]
	db.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("smoldb: collection %q not found", name)
	}
	result, err := col.Compact()
	if err != nil {
		return 0, err
	}
	return result.BytesFreed, nil
}

// Collection returns the named collection, opening it on first use.
func (db *Database) Collection(name string) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if col, ok := db.collections[name]; ok {
		return col, nil
	}
	return db.openCollectionLocked(name)
}

// ListCollections returns every open collection's name.
func (db *Database) ListCollections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.sortedCollectionNamesLocked()
}

// DropCollection closes and deletes a collection's data and index files.
func (db *Database) DropCollection(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	col, exists := db.collections[name]
	if !exists {
		return fmt.Errorf("smoldb: collection %q not found", name)
	}
	if err := col.Close(); err != nil {
		return err
	}
	delete(db.collections, name)
	delete(db.states, name)

	dataPath := filepath.Join(db.config.Dir, name+".data")
	idxPath := filepath.Join(db.config.Dir, name+".idx")
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(idxPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	blobDir := filepath.Join(db.config.Dir, "blobs", name)
	return os.RemoveAll(blobDir)
}

// Compact compacts every collection, returning the total bytes freed.
func (db *Database) Compact() (int64, error) {
	names, _ := db.CollectionNames()
	var total int64
	for _, name := range names {
		freed, err := db.CompactCollection(name)
		if err != nil {
			return total, err
		}
		total += freed
	}
	return total, nil
}

// TriggerGC enqueues a compaction request (spec.md §4.8's COMMAND =
// TRIGGER_GC). If the background worker isn't running (GCEnabled false),
// nothing would ever observe the command, so compaction runs synchronously
// against db.gcState instead, still updating GC_STATUS/GC_PROGRESS/
// GC_BYTES_FREED for GetGCStatus to report.
func (db *Database) TriggerGC() {
	if db.worker != nil {
		worker.Trigger(db.gcState)
		return
	}
	db.runGCSync()
}

func (db *Database) runGCSync() {
	db.gcState.Set(sharedstate.GCStatus, sharedstate.GCStatusRunning)
	db.gcState.Set(sharedstate.GCProgress, 0)

	names, err := db.CollectionNames()
	if err != nil {
		db.gcState.Set(sharedstate.GCStatus, sharedstate.GCStatusIdle)
		return
	}

	var totalFreed int64
	total := len(names)
	for i, name := range names {
		if freed, err := db.CompactCollection(name); err == nil {
			totalFreed += freed
		}
		if total > 0 {
			db.gcState.Set(sharedstate.GCProgress, uint32((i+1)*100/total))
		}
	}

	db.gcState.Set(sharedstate.GCBytesFreed, uint32(totalFreed))
	db.gcState.Set(sharedstate.GCStatus, sharedstate.GCStatusIdle)
	db.gcState.Set(sharedstate.GCProgress, 100)
}

// GetGCStatus reports the background worker's current GC_STATUS/
// GC_PROGRESS/GC_BYTES_FREED cells (spec.md §6.4 getGCStatus).
func (db *Database) GetGCStatus() GCStatus {
	status := "idle"
	switch db.gcState.Get(sharedstate.GCStatus) {
	case sharedstate.GCStatusRunning:
		status = "running"
	case sharedstate.GCStatusDone:
		status = "complete"
	}
	return GCStatus{
		Status:     status,
		Progress:   db.gcState.Get(sharedstate.GCProgress),
		BytesFreed: uint64(db.gcState.Get(sharedstate.GCBytesFreed)),
	}
}

// GetStats aggregates every collection's stats.
func (db *Database) GetStats() map[string]collection.Stats {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make(map[string]collection.Stats, len(db.collections))
	for name, col := range db.collections {
		out[name] = col.GetStats()
	}
	return out
}

// PersistAllIndexes persists every collection's index file (spec.md §8 P8).
func (db *Database) PersistAllIndexes() error {
	db.mu.Lock()
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	db.mu.Unlock()

	for _, name := range names {
		col, err := db.Collection(name)
		if err != nil {
			return err
		}
		if err := col.PersistIndex(); err != nil {
			return fmt.Errorf("smoldb: persist index %q: %w", name, err)
		}
	}
	return nil
}

// Close signals the background worker with SHUTDOWN, cancels its context,
// joins all three of its goroutines, and then persists every collection's
// index file and closes the collection (spec.md line 174: "signaled with
// SHUTDOWN and then joined/terminated").
func (db *Database) Close() error {
	db.mu.Lock()
	db.status = StatusClosing
	if db.workerStop != nil {
		worker.Shutdown(db.gcState) // wake Run immediately instead of waiting out its idle timeout
		db.workerStop()
	}
	names := make([]string, 0, len(db.collections))
	for name := range db.collections {
		names = append(names, name)
	}
	db.mu.Unlock()

	db.workerWG.Wait()

	var lastErr error
	for _, name := range names {
		db.mu.Lock()
		col := db.collections[name]
		db.mu.Unlock()

		db.logger.Printf("smoldb: closing %q...", name)
		if err := col.PersistIndex(); err != nil {
			db.logger.Printf("smoldb: ERROR persist index(%s): %v", name, err)
			lastErr = err
		}
		if err := col.Close(); err != nil {
			db.logger.Printf("smoldb: ERROR close(%s): %v", name, err)
			lastErr = err
		}
	}
	return lastErr
}

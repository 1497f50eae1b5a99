// Package cep implements the CEP engine orchestrator: CSV ingest, the
// staging→memory→eviction→spill→vacuum pipeline, and ad-hoc SELECT.
package cep

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mtsmys/cep-go/internal/catalog"
	"github.com/mtsmys/cep-go/internal/ceplog"
	"github.com/mtsmys/cep-go/internal/column"
	"github.com/mtsmys/cep-go/internal/csvcodec"
	"github.com/mtsmys/cep-go/internal/sqlrunner"
	"github.com/mtsmys/cep-go/internal/sqliteconfig"
	"github.com/mtsmys/cep-go/internal/staging"
)

// Version is the engine's reported version string.
const Version = "0.4.1"

const (
	defaultMaxRecord = 50
	minMaxRecord     = 1
	maxMaxRecordExcl = 500
	sqliteFileSuffix = ".sqlite"
	configDirPerm    = 0o755
)

// Engine is the CEP orchestrator: one memory database, a lazily-opened
// file database, a staging buffer, and the catalog both databases share.
//
// An Engine is not internally synchronized against concurrent InsertCSV /
// Select calls — the caller owns serializing those. mu only guards the
// hot-reload watcher list, the one piece of engine state that is touched
// from a background goroutine.
type Engine struct {
	dbName    string
	catalog   *catalog.Catalog
	configDir string

	memDB  *sql.DB
	fileDB *sql.DB

	maxRecord     int
	vacuumRecord  int64
	persistence   bool
	recordCounter int64
	synchronous   sqliteconfig.SynchronousMode

	staging *staging.Staging
	runner  *sqlrunner.Runner
	cfg     *sqliteconfig.Configurator
	logger  *slog.Logger

	mu          sync.RWMutex
	watchers    []func(event string)
	watchCancel func()
}

// New constructs an Engine over databaseName (".sqlite" appended if
// absent) and cat, opens the memory database, configures it per C5, and
// has the catalog create all tables in it. The file database is not
// opened until the first spill.
//
// synchronous overrides the synchronous pragma for both databases; ""
// selects the per-database default (OFF for memory, NORMAL for file).
func New(ctx context.Context, databaseName string, cat *catalog.Catalog, logger *slog.Logger, synchronous string) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cat == nil {
		return nil, newError(BadInput, "New", fmt.Errorf("catalog must not be nil"))
	}
	syncMode, err := sqliteconfig.ParseSynchronousMode(synchronous)
	if err != nil {
		return nil, newError(BadInput, "New", err)
	}

	configDir, err := defaultConfigDir()
	if err != nil {
		return nil, newError(IoError, "New", err)
	}
	if err := os.MkdirAll(configDir, configDirPerm); err != nil {
		return nil, newError(IoError, "New", err)
	}

	memDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, newError(SqlError, "New", err)
	}
	// A pooled :memory: handle gives each connection its own independent
	// database unless the pool is pinned to exactly one connection.
	memDB.SetMaxOpenConns(1)

	runner := sqlrunner.New(logger)
	cfg := sqliteconfig.New(runner)

	e := &Engine{
		dbName:       normalizeDBName(databaseName),
		catalog:      cat,
		configDir:    configDir,
		memDB:        memDB,
		maxRecord:    defaultMaxRecord,
		vacuumRecord: 0,
		persistence:  true,
		synchronous:  syncMode,
		staging:      staging.New(),
		runner:       runner,
		cfg:          cfg,
		logger:       logger,
	}

	memOpts := sqliteconfig.DefaultMemoryOptions()
	if syncMode != "" {
		memOpts.Synchronous = syncMode
	}
	if err := cfg.Apply(ctx, memDB, memOpts, e.vacuumRecord); err != nil {
		memDB.Close()
		return nil, newError(SqlError, "New", err)
	}
	if err := cat.CreateAll(ctx, memDB); err != nil {
		memDB.Close()
		return nil, newError(SqlError, "New", err)
	}

	return e, nil
}

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".m2m", "cep"), nil
}

func normalizeDBName(name string) string {
	if strings.HasSuffix(name, sqliteFileSuffix) {
		return name
	}
	return name + sqliteFileSuffix
}

// GetDatabaseName returns the normalized database name.
func (e *Engine) GetDatabaseName() string { return e.dbName }

// GetVersion returns the engine's version string.
func GetVersion() string { return Version }

// SetMaxRecord accepts n in [1, 500); otherwise the engine is unchanged
// and an error is returned.
func (e *Engine) SetMaxRecord(n int) error {
	if n < minMaxRecord || n >= maxMaxRecordExcl {
		return newError(BadInput, "SetMaxRecord", fmt.Errorf("max_record %d out of range [%d, %d)", n, minMaxRecord, maxMaxRecordExcl))
	}
	e.maxRecord = n
	return nil
}

// SetPersistence toggles spill-to-file behaviour. Switching true→false
// does not close an already-open file database, it only stops future
// spills; false→true allows lazy open on the next spill.
func (e *Engine) SetPersistence(enabled bool) {
	e.persistence = enabled
}

// SetVacuumRecord sets the vacuum threshold. n == 0 selects auto-vacuum
// (handled at pragma-configuration time); n > 0 selects manual vacuum at
// that threshold. Does not retroactively reconfigure an already-open
// database's auto_vacuum pragma.
func (e *Engine) SetVacuumRecord(n int64) error {
	if n < 0 {
		return newError(BadInput, "SetVacuumRecord", fmt.Errorf("vacuum_record %d must be >= 0", n))
	}
	e.vacuumRecord = n
	return nil
}

// InsertCSV runs the full stage → flush → evict → spill → vacuum-check
// pipeline for one CSV payload targeting table, returning the number of
// rows that reached the memory database. ctx is checked once at entry;
// after that the pipeline runs to completion even if ctx is cancelled.
func (e *Engine) InsertCSV(ctx context.Context, table, csv string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	ctx = context.WithoutCancel(ctx)
	tid := uuid.New().String()

	list, ok := e.catalog.Lookup(table)
	if !ok {
		return 0, newError(BadInput, "InsertCSV", fmt.Errorf("unknown table %q", table))
	}

	parsed, err := csvcodec.Parse(csv)
	if err != nil {
		return 0, newError(BadInput, "InsertCSV", err)
	}
	if len(parsed.Header) != list.Len() {
		return 0, newError(BadInput, "InsertCSV", fmt.Errorf("header has %d fields, table %q has %d columns", len(parsed.Header), table, list.Len()))
	}
	if len(parsed.Rows) == 0 {
		return 0, nil
	}
	if err := csvcodec.ValidateRowWidth(parsed.Rows, len(parsed.Header)); err != nil {
		return 0, newError(BadInput, "InsertCSV", err)
	}

	buf := e.staging.Table(table)
	cols := list.Columns()
	for _, row := range parsed.Rows {
		values := make(map[string]string, len(cols))
		for i, col := range cols {
			values[col.Name] = row[i]
		}
		buf.PushNew(staging.Record{Values: values})
	}
	staged := len(parsed.Rows)

	n, err := e.flushToMemory(ctx, tid)
	if err != nil {
		return 0, err
	}
	e.recordCounter += n

	if err := e.evict(ctx, table); err != nil {
		return int(n), err
	}

	if err := e.spill(ctx, tid); err != nil {
		ceplog.LogSpillFailed(e.logger, "InsertCSV", tid, err)
	}

	if err := e.maybeVacuum(ctx); err != nil {
		e.logger.Error("vacuum failed", "fn", "InsertCSV", "trace_id", tid, "err", err)
	}

	_ = staged
	return int(n), nil
}

// flushToMemory begins a transaction against the memory database, inserts
// every table's pending "new" rows, and promotes successfully-stepped
// rows to "old". Per-row step failures are logged and the row is dropped;
// the transaction still commits.
func (e *Engine) flushToMemory(ctx context.Context, tid string) (int64, error) {
	conn, err := e.memDB.Conn(ctx)
	if err != nil {
		return 0, newError(SqlError, "flushToMemory", err)
	}
	defer conn.Close()

	if err := e.runner.Begin(ctx, conn); err != nil {
		return 0, newError(SqlError, "flushToMemory", err)
	}

	var total int64
	for _, table := range e.staging.Tables() {
		buf := e.staging.Table(table)
		rows := buf.DrainNew()
		if len(rows) == 0 {
			continue
		}
		list, ok := e.catalog.Lookup(table)
		if !ok {
			e.logger.Error("staged rows for unregistered table", "fn", "flushToMemory", "trace_id", tid, "table", table)
			continue
		}

		insertSQL := catalog.InsertSQL(table, list)
		stmt, err := conn.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = e.runner.ExecUpdate(ctx, conn, "ROLLBACK")
			return 0, newError(SqlError, "flushToMemory", err)
		}

		var succeeded []staging.Record
		for _, row := range rows {
			args, err := bindRow(list, row)
			if err != nil {
				ceplog.LogRowDropped(e.logger, "flushToMemory", tid, table, err)
				continue
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				ceplog.LogRowDropped(e.logger, "flushToMemory", tid, table, err)
				continue
			}
			succeeded = append(succeeded, row)
			total++
		}
		stmt.Close()
		buf.PromoteToOld(succeeded)
	}

	if err := e.runner.Commit(ctx, conn); err != nil {
		return 0, newError(SqlError, "flushToMemory", err)
	}
	return total, nil
}

// evict recomputes the target table's row count directly from the memory
// database (rather than from staging queue length, which can drift from
// the authoritative row count when rows are dropped mid-flush) and
// deletes the oldest excess rows by ascending rowid.
func (e *Engine) evict(ctx context.Context, table string) error {
	var count int64
	row := e.memDB.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err := row.Scan(&count); err != nil {
		return newError(SqlError, "evict", err)
	}

	excess := count - int64(e.maxRecord)
	if excess <= 0 {
		return nil
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE rowid IN (SELECT rowid FROM %s ORDER BY rowid LIMIT ?)", table, table)
	if err := e.runner.ExecUpdate(ctx, e.memDB, deleteSQL, excess); err != nil {
		return newError(SqlError, "evict", err)
	}
	return nil
}

// spill trims every table's "old" staging queue down to max_record,
// persisting the popped rows to the file database (opening it lazily on
// first use) when persistence is enabled, or discarding them otherwise.
func (e *Engine) spill(ctx context.Context, tid string) error {
	var conn *sql.Conn
	if e.persistence {
		if err := e.ensureFileDB(ctx); err != nil {
			return newError(IoError, "spill", err)
		}
		c, err := e.fileDB.Conn(ctx)
		if err != nil {
			return newError(SqlError, "spill", err)
		}
		defer c.Close()
		conn = c
		if err := e.runner.Begin(ctx, conn); err != nil {
			return newError(SqlError, "spill", err)
		}
	}

	for _, table := range e.staging.Tables() {
		buf := e.staging.Table(table)
		excess := buf.OldLen() - e.maxRecord
		if excess <= 0 {
			continue
		}
		popped := buf.EvictOldest(excess)
		if !e.persistence {
			continue
		}

		list, ok := e.catalog.Lookup(table)
		if !ok {
			continue
		}
		insertSQL := catalog.InsertSQL(table, list)
		stmt, err := conn.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = e.runner.ExecUpdate(ctx, conn, "ROLLBACK")
			return newError(SqlError, "spill", err)
		}
		for _, rec := range popped {
			args, err := bindRow(list, rec)
			if err != nil {
				ceplog.LogRowDropped(e.logger, "spill", tid, table, err)
				continue
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				ceplog.LogRowDropped(e.logger, "spill", tid, table, err)
			}
		}
		stmt.Close()
	}

	if e.persistence && conn != nil {
		if err := e.runner.Commit(ctx, conn); err != nil {
			return newError(SqlError, "spill", err)
		}
	}
	return nil
}

// maybeVacuum runs C5's Vacuum against both databases once record_counter
// exceeds vacuum_record, then resets the counter.
func (e *Engine) maybeVacuum(ctx context.Context) error {
	if e.vacuumRecord <= 0 || e.recordCounter <= e.vacuumRecord {
		return nil
	}
	if err := e.cfg.Vacuum(ctx, e.memDB); err != nil {
		return err
	}
	if e.persistence && e.fileDB != nil {
		if err := e.cfg.Vacuum(ctx, e.fileDB); err != nil {
			return err
		}
	}
	ceplog.LogVacuumTriggered(e.logger, "maybeVacuum", e.recordCounter, e.vacuumRecord)
	e.recordCounter = 0
	return nil
}

// Vacuum forces an immediate VACUUM of both databases, independent of
// vacuum_record and the record counter maybeVacuum tracks.
func (e *Engine) Vacuum(ctx context.Context) error {
	if err := e.cfg.Vacuum(ctx, e.memDB); err != nil {
		return newError(SqlError, "Vacuum", err)
	}
	if e.persistence {
		if err := e.ensureFileDB(ctx); err != nil {
			return newError(IoError, "Vacuum", err)
		}
		if err := e.cfg.Vacuum(ctx, e.fileDB); err != nil {
			return newError(SqlError, "Vacuum", err)
		}
	}
	e.recordCounter = 0
	return nil
}

// ensureFileDB lazily opens the file database and creates all catalog
// tables in it, on first spill.
func (e *Engine) ensureFileDB(ctx context.Context) error {
	if e.fileDB != nil {
		return nil
	}
	path := filepath.Join(e.configDir, e.dbName)
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	fileOpts := sqliteconfig.DefaultFileOptions()
	if e.synchronous != "" {
		fileOpts.Synchronous = e.synchronous
	}
	if err := e.cfg.Apply(ctx, db, fileOpts, e.vacuumRecord); err != nil {
		db.Close()
		return err
	}
	if err := e.catalog.CreateAll(ctx, db); err != nil {
		db.Close()
		return err
	}
	e.fileDB = db
	return nil
}

// Select prepares sql against the memory database and formats the result
// as CSV via the CSV codec. It returns ok=false (the spec's "None") when
// zero rows were produced. ctx is checked once at entry only.
func (e *Engine) Select(ctx context.Context, query string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	ctx = context.WithoutCancel(ctx)
	rows, err := e.memDB.QueryContext(ctx, query)
	if err != nil {
		return "", false, newError(SqlError, "Select", err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return "", false, newError(SqlError, "Select", err)
	}

	names := make([]string, len(colTypes))
	types := make([]column.Type, len(colTypes))
	for i, ct := range colTypes {
		names[i] = ct.Name()
		t, err := column.NormalizeType(ct.DatabaseTypeName())
		if err != nil {
			t = column.Text
		}
		types[i] = t
	}

	var formatted [][]string
	for rows.Next() {
		dest := make([]any, len(colTypes))
		ptrs := make([]any, len(colTypes))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", false, newError(SqlError, "Select", err)
		}
		row := make([]string, len(dest))
		for i, v := range dest {
			row[i] = csvcodec.FormatValue(types[i], v)
		}
		formatted = append(formatted, row)
	}
	if err := rows.Err(); err != nil {
		return "", false, newError(SqlError, "Select", err)
	}

	csvOut, ok := csvcodec.FormatSelect(csvcodec.SelectResult{OriginNames: names, Rows: formatted})
	return csvOut, ok, nil
}

// Shutdown performs the final flush — spilling every remaining "old" row
// for every table, not just the excess — and closes both databases.
func (e *Engine) Shutdown(ctx context.Context) error {
	ceplog.LogShutdown(e.logger, "Shutdown", e.dbName)

	e.mu.Lock()
	if e.watchCancel != nil {
		e.watchCancel()
	}
	e.mu.Unlock()

	var conn *sql.Conn
	if e.persistence {
		if err := e.ensureFileDB(ctx); err != nil {
			e.logger.Error("final flush: file db open failed, remaining rows dropped", "fn", "Shutdown", "err", err)
		} else {
			c, err := e.fileDB.Conn(ctx)
			if err == nil {
				defer c.Close()
				conn = c
				_ = e.runner.Begin(ctx, conn)
			}
		}
	}

	for _, table := range e.staging.Tables() {
		buf := e.staging.Table(table)
		remaining := buf.EvictOldest(buf.OldLen())
		if !e.persistence || conn == nil || len(remaining) == 0 {
			continue
		}
		list, ok := e.catalog.Lookup(table)
		if !ok {
			continue
		}
		stmt, err := conn.PrepareContext(ctx, catalog.InsertSQL(table, list))
		if err != nil {
			e.logger.Error("final flush prepare failed", "fn", "Shutdown", "table", table, "err", err)
			continue
		}
		for _, rec := range remaining {
			args, err := bindRow(list, rec)
			if err != nil {
				e.logger.Error("final flush row dropped", "fn", "Shutdown", "table", table, "err", err)
				continue
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				e.logger.Error("final flush row dropped", "fn", "Shutdown", "table", table, "err", err)
			}
		}
		stmt.Close()
	}

	if conn != nil {
		if err := e.runner.Commit(ctx, conn); err != nil {
			e.logger.Error("final flush commit failed", "fn", "Shutdown", "err", err)
		}
	}

	if e.fileDB != nil {
		_, _ = e.fileDB.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
		if err := e.fileDB.Close(); err != nil {
			return newError(SqlError, "Shutdown", err)
		}
	}
	return e.memDB.Close()
}

// OnChange registers a callback invoked from WatchConfigFile's goroutine
// whenever the watched file changes.
func (e *Engine) OnChange(fn func(event string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.watchers = append(e.watchers, fn)
}

// WatchConfigFile watches path (typically the schema or engine config
// file) for writes and notifies registered OnChange callbacks. Only
// max_record and vacuum_record are meaningfully hot-reloadable; the
// caller is responsible for re-reading and re-applying them.
func (e *Engine) WatchConfigFile(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return newError(IoError, "WatchConfigFile", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return newError(IoError, "WatchConfigFile", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.watchCancel = cancel
	e.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					ceplog.LogConfigReloaded(e.logger, "WatchConfigFile", path)
					e.notifyWatchers("config_changed")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				e.logger.Warn("config watcher error", "fn", "WatchConfigFile", "err", err)
			}
		}
	}()
	return nil
}

func (e *Engine) notifyWatchers(event string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, fn := range e.watchers {
		go fn(event)
	}
}

// FileChecksum returns a CRC-32 (IEEE) checksum of the file database's
// bytes on disk, for corruption detection between runs. It errors if the
// file database has never been opened.
func (e *Engine) FileChecksum() (uint32, error) {
	if e.fileDB == nil {
		return 0, newError(Internal, "FileChecksum", fmt.Errorf("file database not open"))
	}
	path := filepath.Join(e.configDir, e.dbName)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, newError(IoError, "FileChecksum", err)
	}
	return crc32.ChecksumIEEE(data), nil
}

// bindRow converts a staged record's string values into driver-ready
// arguments, in the column list's positional order.
func bindRow(list *column.List, rec staging.Record) ([]any, error) {
	cols := list.Columns()
	args := make([]any, len(cols))
	for i, col := range cols {
		raw, ok := rec.Values[col.Name]
		if !ok {
			return nil, fmt.Errorf("bindRow: missing value for column %q", col.Name)
		}
		v, err := bindValue(col.Type, raw)
		if err != nil {
			return nil, fmt.Errorf("bindRow: column %q: %w", col.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// bindValue converts one CSV field to the driver value appropriate for
// typ. A literal "NULL" always binds nil, regardless of declared type.
func bindValue(typ column.Type, raw string) (any, error) {
	if raw == "NULL" {
		return nil, nil
	}
	switch typ {
	case column.Integer, column.DateTime:
		return strconv.ParseInt(raw, 10, 64)
	case column.Real, column.Numeric:
		return strconv.ParseFloat(raw, 64)
	case column.Bool:
		switch strings.ToLower(raw) {
		case "true":
			return int64(1), nil
		case "false":
			return int64(0), nil
		default:
			return nil, fmt.Errorf("invalid BOOL literal %q", raw)
		}
	case column.Blob:
		return []byte(raw), nil
	default:
		return raw, nil
	}
}

// Package sqliteconfig applies the pragma sequence the CEP engine requires
// of both its memory and file databases, and performs periodic VACUUM.
package sqliteconfig

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mtsmys/cep-go/internal/sqlrunner"
)

// SynchronousMode controls SQLite's synchronous pragma.
type SynchronousMode string

const (
	SynchronousOff    SynchronousMode = "OFF"
	SynchronousNormal SynchronousMode = "NORMAL"
	SynchronousFull   SynchronousMode = "FULL"
)

// ParseSynchronousMode validates a config/flag-supplied synchronous value
// case-insensitively. An empty string is returned unchanged, letting the
// caller fall back to the per-database default.
func ParseSynchronousMode(s string) (SynchronousMode, error) {
	switch strings.ToUpper(s) {
	case "":
		return "", nil
	case string(SynchronousOff):
		return SynchronousOff, nil
	case string(SynchronousNormal):
		return SynchronousNormal, nil
	case string(SynchronousFull):
		return SynchronousFull, nil
	default:
		return "", fmt.Errorf("sqliteconfig: invalid synchronous mode %q", s)
	}
}

// Options captures the tunable pragmas applied to a database connection.
// The zero value selects journal_mode MEMORY and synchronous NORMAL; the
// engine itself uses DefaultMemoryOptions and DefaultFileOptions. Whether auto_vacuum is
// enabled is not part of Options — per spec §4.4 it is an unconditional
// function of vacuum_record, decided by Apply itself.
type Options struct {
	JournalModeWAL bool
	Synchronous    SynchronousMode
	ForeignKeys    bool
}

// DefaultMemoryOptions matches the pragma set the spec prescribes for the
// in-memory staging database: WAL is pointless on :memory: so it is left
// off, and synchronous is OFF since an in-memory DB cannot survive a crash
// regardless.
func DefaultMemoryOptions() Options {
	return Options{JournalModeWAL: false, Synchronous: SynchronousOff}
}

// DefaultFileOptions matches the pragma set for the durable, file-backed
// spill database.
func DefaultFileOptions() Options {
	return Options{JournalModeWAL: true, Synchronous: SynchronousNormal}
}

// Configurator applies Options to a database handle via a Runner, so every
// pragma statement shares the engine's BUSY-retry policy.
type Configurator struct {
	runner *sqlrunner.Runner
}

// New returns a Configurator driven by runner.
func New(runner *sqlrunner.Runner) *Configurator {
	return &Configurator{runner: runner}
}

// Apply runs the pragma sequence against db: encoding, auto_vacuum (FULL,
// only when vacuumRecord==0), journal_mode, synchronous, then
// foreign_keys. auto_vacuum comes before journal_mode because switching a
// fresh file to WAL writes its header, after which SQLite no longer
// changes the auto_vacuum mode.
func (c *Configurator) Apply(ctx context.Context, db *sql.DB, opts Options, vacuumRecord int64) error {
	statements := []string{"PRAGMA encoding = 'UTF-8'"}

	if vacuumRecord == 0 {
		statements = append(statements, "PRAGMA auto_vacuum = FULL")
	}

	if opts.JournalModeWAL {
		statements = append(statements, "PRAGMA journal_mode = WAL")
	} else {
		statements = append(statements, "PRAGMA journal_mode = MEMORY")
	}

	sync := opts.Synchronous
	if sync == "" {
		sync = SynchronousNormal
	}
	statements = append(statements, fmt.Sprintf("PRAGMA synchronous = %s", sync))

	if opts.ForeignKeys {
		statements = append(statements, "PRAGMA foreign_keys = ON")
	}

	for _, stmt := range statements {
		if err := c.runner.ExecUpdate(ctx, db, stmt); err != nil {
			return fmt.Errorf("sqliteconfig: apply %q: %w", stmt, err)
		}
	}
	return nil
}

// Vacuum issues VACUUM against db. Callers gate this on a record-count
// threshold (vacuum_record); Vacuum itself is unconditional.
func (c *Configurator) Vacuum(ctx context.Context, db *sql.DB) error {
	if err := c.runner.ExecUpdate(ctx, db, "VACUUM"); err != nil {
		return fmt.Errorf("sqliteconfig: vacuum: %w", err)
	}
	return nil
}

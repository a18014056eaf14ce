// Package store implements the persistence journal and the relational
// schema it drains into (spec.md §4.7, §6): world mutations are pushed as
// typed world.Update records during a tick and applied here, in submission
// order, outside the hot path; cold load reads the same tables back into a
// fresh world.World. The journal is the sole writer — readers only query
// the store during cold load or HTTP script CRUD.
package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Store wraps the relational handle the journal worker and the HTTP script
// CRUD surface share. MemoryMode backs every table with an in-process map
// instead of a SQL connection, for tests and a DB-less "in-memory" startup
// (spec.md §6's "database path (or \"in-memory\")" CLI contract).
type Store struct {
	DB         *sql.DB
	MemoryMode bool

	mu         sync.RWMutex
	rooms      map[uint64]roomRow
	exits      map[uint64][]exitRow
	regions    map[uint64][]string
	protos     map[uint64]protoRow
	objects    map[uint64]objectRow
	players    map[string]playerRow
	playerObjs map[uint64][]uint64 // player id -> object ids
	roomObjs   map[uint64][]uint64 // room id -> object ids
	scripts    map[string]scriptRow
	hooks      map[hookKey][]hookRow
}

// hookKey identifies one host's hook list: (kind, hostID).
type hookKey struct {
	Kind HookHost
	ID   uint64
}

// HookHost names which of the four hook tables a ScriptHooks list belongs
// to (spec.md §6: "four hook tables (room/object/prototype/player)").
type HookHost string

const (
	HookHostRoom      HookHost = "room"
	HookHostObject    HookHost = "object"
	HookHostPrototype HookHost = "prototype"
	HookHostPlayer    HookHost = "player"
)

func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// NewMemoryStore backs the store with plain maps, for "in-memory" startup
// and for tests that exercise the journal without a database.
func NewMemoryStore() *Store {
	return &Store{
		MemoryMode: true,
		rooms:      make(map[uint64]roomRow),
		exits:      make(map[uint64][]exitRow),
		regions:    make(map[uint64][]string),
		protos:     make(map[uint64]protoRow),
		objects:    make(map[uint64]objectRow),
		players:    make(map[string]playerRow),
		playerObjs: make(map[uint64][]uint64),
		roomObjs:   make(map[uint64][]uint64),
		scripts:    make(map[string]scriptRow),
		hooks:      make(map[hookKey][]hookRow),
	}
}

// ConnectMySQL opens and pings the relational store the journal worker and
// cold load read and write; the DSN's database parent (schema) is expected
// to already exist, matching the CLI contract's "database path" option.
func ConnectMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

// WithTx runs fn inside a transaction, rolling back on error or panic.
// MemoryMode passes a nil *sql.Tx; every memory-mode repo method ignores it
// and instead takes s.mu directly, matching the Store's own locking model.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if s.MemoryMode {
		return fn(nil)
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	tx = nil
	return nil
}

func (s *Store) Close() error {
	if s.MemoryMode {
		return nil
	}
	return s.DB.Close()
}

// ApplySchema creates every table the journal and cold load depend on if
// they don't already exist. A no-op in MemoryMode.
func (s *Store) ApplySchema(ctx context.Context) error {
	if s.MemoryMode {
		return nil
	}
	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

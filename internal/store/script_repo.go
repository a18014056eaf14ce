package store

import (
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"
)

var (
	ErrScriptExists   = errors.New("store: a script with this name already exists")
	ErrScriptNotFound = errors.New("store: no script with this name")
)

// ScriptRecord is one script's durable content plus its most recent
// compile outcome, the shape the HTTP scripts API reads and writes.
type ScriptRecord struct {
	Name         string
	Trigger      string
	Code         string
	CompileError string
}

// ScriptRepo backs the HTTP /scripts/* surface (spec.md §6): authors
// create, read, update and delete named scripts here; the scripting
// runtime only ever reads through world.Scripts, which the engine
// refreshes from this table after every write.
type ScriptRepo struct {
	store *Store
}

func NewScriptRepo(s *Store) *ScriptRepo {
	return &ScriptRepo{store: s}
}

func (r *ScriptRepo) Create(name, trigger, code, compileError string) error {
	s := r.store
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.scripts[name]; exists {
			return ErrScriptExists
		}
		s.scripts[name] = scriptRow{Name: name, Trigger: trigger, Code: code, CompileError: compileError}
		return nil
	}
	_, err := s.DB.Exec(`INSERT INTO scripts (name,trigger_name,code,compile_error) VALUES (?,?,?,?)`,
		name, trigger, code, compileError)
	if isDuplicateKeyErr(err) {
		return ErrScriptExists
	}
	return err
}

func (r *ScriptRepo) Read(name string) (ScriptRecord, error) {
	s := r.store
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		row, ok := s.scripts[name]
		if !ok {
			return ScriptRecord{}, ErrScriptNotFound
		}
		return ScriptRecord(row), nil
	}
	var row scriptRow
	err := s.DB.QueryRow(`SELECT name,trigger_name,code,compile_error FROM scripts WHERE name=?`, name).
		Scan(&row.Name, &row.Trigger, &row.Code, &row.CompileError)
	if errors.Is(err, sql.ErrNoRows) {
		return ScriptRecord{}, ErrScriptNotFound
	}
	if err != nil {
		return ScriptRecord{}, err
	}
	return ScriptRecord(row), nil
}

func (r *ScriptRepo) ReadAll() ([]ScriptRecord, error) {
	s := r.store
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := make([]ScriptRecord, 0, len(s.scripts))
		for _, row := range s.scripts {
			out = append(out, ScriptRecord(row))
		}
		return out, nil
	}
	rows, err := s.DB.Query(`SELECT name,trigger_name,code,compile_error FROM scripts ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScriptRecord
	for rows.Next() {
		var row scriptRow
		if err := rows.Scan(&row.Name, &row.Trigger, &row.Code, &row.CompileError); err != nil {
			return nil, err
		}
		out = append(out, ScriptRecord(row))
	}
	return out, rows.Err()
}

func (r *ScriptRepo) Update(name, trigger, code, compileError string) error {
	s := r.store
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.scripts[name]; !exists {
			return ErrScriptNotFound
		}
		s.scripts[name] = scriptRow{Name: name, Trigger: trigger, Code: code, CompileError: compileError}
		return nil
	}
	res, err := s.DB.Exec(`UPDATE scripts SET trigger_name=?, code=?, compile_error=? WHERE name=?`,
		trigger, code, compileError, name)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *ScriptRepo) Delete(name string) error {
	s := r.store
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.scripts[name]; !exists {
			return ErrScriptNotFound
		}
		delete(s.scripts, name)
		return nil
	}
	res, err := s.DB.Exec(`DELETE FROM scripts WHERE name=?`, name)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrScriptNotFound
	}
	return nil
}

// isDuplicateKeyErr recognizes a MySQL duplicate-key violation (error 1062),
// the same check any table with a unique key needs, not just scripts.
func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

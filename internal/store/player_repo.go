package store

import (
	"errors"
	"sync"
	"time"

	"example.com/remud/internal/world"
)

var (
	errPlayerExists   = errors.New("store: player already exists")
	errPlayerNotFound = errors.New("store: player not found")
)

// PlayerRepo is the store's view onto the players table, wired as both
// session.Directory (name/credential lookups the negotiate FSM needs) and
// auth.SessionStore (the single-active-session bookkeeping the HTTP token
// endpoints and VerifyAccess need). "Online" is runtime state no table
// tracks; the engine calls MarkOnline/MarkOffline as connections arrive
// and leave.
type PlayerRepo struct {
	store *Store

	mu     sync.Mutex
	online map[string]bool
}

func NewPlayerRepo(s *Store) *PlayerRepo {
	return &PlayerRepo{store: s, online: make(map[string]bool)}
}

// MarkOnline records that name now has a live session; MarkOffline clears
// it. The engine calls these from the session arrival/disconnect hooks,
// never the negotiate FSM itself (Directory.IsOnline only reads the set).
func (r *PlayerRepo) MarkOnline(name string)  { r.mu.Lock(); r.online[name] = true; r.mu.Unlock() }
func (r *PlayerRepo) MarkOffline(name string) { r.mu.Lock(); delete(r.online, name); r.mu.Unlock() }

func (r *PlayerRepo) IsOnline(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[name]
}

// Immortal reports whether name carries world.PlayerImmortal, the flag
// auth.Manager.Issue uses to grant the "scripts" scope.
func (r *PlayerRepo) Immortal(name string) bool {
	s := r.store
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		p, ok := s.players[name]
		if !ok {
			return false
		}
		return world.PlayerFlags(p.Flags).Has(world.PlayerImmortal)
	}
	var flags uint8
	if err := s.DB.QueryRow(`SELECT flags FROM players WHERE name=?`, name).Scan(&flags); err != nil {
		return false
	}
	return world.PlayerFlags(flags).Has(world.PlayerImmortal)
}

// IDByName returns the PlayerId a persisted row was created with, the
// engine's only way to recover the id CreateWithIDs assigned without
// issuing a second one from world.Players on first login.
func (r *PlayerRepo) IDByName(name string) (uint64, bool) {
	s := r.store
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		p, ok := s.players[name]
		return p.ID, ok
	}
	var id uint64
	err := s.DB.QueryRow(`SELECT id FROM players WHERE name=?`, name).Scan(&id)
	if err != nil {
		return 0, false
	}
	return id, true
}

func (r *PlayerRepo) PasswordHash(name string) (string, bool) {
	s := r.store
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		p, ok := s.players[name]
		return p.PasswordHash, ok
	}
	var hash string
	err := s.DB.QueryRow(`SELECT password_hash FROM players WHERE name=?`, name).Scan(&hash)
	if err != nil {
		return "", false
	}
	return hash, true
}

// Create inserts a brand new player row with a freshly issued PlayerId and
// the engine's starting-stat defaults, placed in the void room until
// something moves it. ids seeds the PlayerId counter; callers pass the
// process-singleton world.Players index so every Create and every engine
// tick draw from the same counter.
func (r *PlayerRepo) Create(name, passwordHash string) error {
	return r.CreateWithIDs(name, passwordHash, nil)
}

// CreateWithIDs is the full form Create delegates to; main.go's Directory
// wiring calls it directly so a new player's ID comes from the same
// world.Players counter the rest of the engine uses.
func (r *PlayerRepo) CreateWithIDs(name, passwordHash string, ids *world.Players) error {
	s := r.store
	var id uint64
	if ids != nil {
		id = uint64(ids.Next())
	} else {
		id = r.nextFallbackID()
	}
	row := playerRow{
		Name:          name,
		PasswordHash:  passwordHash,
		ID:            id,
		RoomID:        uint64(world.VoidRoomId),
		Strength:      10,
		Agility:       10,
		Intellect:     10,
		HealthCurrent: 20,
		HealthMax:     20,
	}
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, exists := s.players[name]; exists {
			return errPlayerExists
		}
		s.players[name] = row
		return nil
	}
	_, err := s.DB.Exec(
		`INSERT INTO players (name,password_hash,id,room_id,flags,strength,agility,intellect,health_current,health_max)
		 VALUES (?,?,?,?,0,?,?,?,?,?)`,
		row.Name, row.PasswordHash, row.ID, row.RoomID, row.Strength, row.Agility, row.Intellect, row.HealthCurrent, row.HealthMax)
	return err
}

// nextFallbackID is only reached in tests that build a PlayerRepo without
// wiring the live world.Players counter; it scans the current table for a
// free id rather than leaving Create unusable.
func (r *PlayerRepo) nextFallbackID() uint64 {
	s := r.store
	var max uint64
	if s.MemoryMode {
		s.mu.RLock()
		for _, p := range s.players {
			if p.ID > max {
				max = p.ID
			}
		}
		s.mu.RUnlock()
	}
	return max + 1
}

func (r *PlayerRepo) AccessIssuedAt(player string) (time.Time, bool, error) {
	return r.issuedAt(player, true)
}

func (r *PlayerRepo) RefreshIssuedAt(player string) (time.Time, bool, error) {
	return r.issuedAt(player, false)
}

func (r *PlayerRepo) issuedAt(player string, access bool) (time.Time, bool, error) {
	s := r.store
	if s.MemoryMode {
		s.mu.RLock()
		defer s.mu.RUnlock()
		p, ok := s.players[player]
		if !ok {
			return time.Time{}, false, nil
		}
		if access {
			if p.AccessIssuedAt == nil {
				return time.Time{}, false, nil
			}
			return *p.AccessIssuedAt, true, nil
		}
		if p.RefreshIssuedAt == nil {
			return time.Time{}, false, nil
		}
		return *p.RefreshIssuedAt, true, nil
	}
	column := "access_issued_at"
	if !access {
		column = "refresh_issued_at"
	}
	var t *time.Time
	err := s.DB.QueryRow(`SELECT `+column+` FROM players WHERE name=?`, player).Scan(&t)
	if err != nil {
		return time.Time{}, false, err
	}
	if t == nil {
		return time.Time{}, false, nil
	}
	return *t, true, nil
}

func (r *PlayerRepo) RegisterTokens(player string, accessIssuedAt, refreshIssuedAt time.Time) error {
	s := r.store
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.players[player]
		if !ok {
			return errPlayerNotFound
		}
		a, rf := accessIssuedAt, refreshIssuedAt
		p.AccessIssuedAt = &a
		p.RefreshIssuedAt = &rf
		s.players[player] = p
		return nil
	}
	_, err := s.DB.Exec(`UPDATE players SET access_issued_at=?, refresh_issued_at=? WHERE name=?`,
		accessIssuedAt, refreshIssuedAt, player)
	return err
}

func (r *PlayerRepo) Logout(player string) error {
	s := r.store
	r.MarkOffline(player)
	if s.MemoryMode {
		s.mu.Lock()
		defer s.mu.Unlock()
		p, ok := s.players[player]
		if !ok {
			return nil
		}
		p.AccessIssuedAt = nil
		p.RefreshIssuedAt = nil
		s.players[player] = p
		return nil
	}
	_, err := s.DB.Exec(`UPDATE players SET access_issued_at=NULL, refresh_issued_at=NULL WHERE name=?`, player)
	return err
}

package auth

import (
	"testing"
	"time"
)

type memStore struct {
	accessIssued  map[string]time.Time
	refreshIssued map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{accessIssued: map[string]time.Time{}, refreshIssued: map[string]time.Time{}}
}

func (s *memStore) AccessIssuedAt(player string) (time.Time, bool, error) {
	t, ok := s.accessIssued[player]
	return t, ok, nil
}

func (s *memStore) RefreshIssuedAt(player string) (time.Time, bool, error) {
	t, ok := s.refreshIssued[player]
	return t, ok, nil
}

func (s *memStore) RegisterTokens(player string, access, refresh time.Time) error {
	s.accessIssued[player] = access
	s.refreshIssued[player] = refresh
	return nil
}

func (s *memStore) Logout(player string) error {
	delete(s.accessIssued, player)
	delete(s.refreshIssued, player)
	return nil
}

func TestHashAndVerifyPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	ok, err := VerifyPassword(hash, "correct horse battery staple")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if !ok {
		t.Fatal("VerifyPassword rejected the correct password")
	}
	ok, err = VerifyPassword(hash, "wrong password")
	if err != nil {
		t.Fatalf("VerifyPassword: %v", err)
	}
	if ok {
		t.Fatal("VerifyPassword accepted the wrong password")
	}
}

func TestLoginThenVerifyAccess(t *testing.T) {
	mgr := NewManager("test-secret")
	store := newMemStore()
	hash, _ := HashPassword("hunter2")

	pair, err := Login(mgr, store, "alice", hash, "hunter2", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	player, err := VerifyAccess(mgr, store, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if player != "alice" {
		t.Fatalf("VerifyAccess player = %q, want alice", player)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	mgr := NewManager("test-secret")
	store := newMemStore()
	hash, _ := HashPassword("hunter2")

	_, err := Login(mgr, store, "alice", hash, "wrong", false)
	if err != ErrAuthenticationError {
		t.Fatalf("Login err = %v, want ErrAuthenticationError", err)
	}
}

func TestImmortalGetsScriptsScope(t *testing.T) {
	mgr := NewManager("test-secret")
	store := newMemStore()
	hash, _ := HashPassword("hunter2")

	pair, err := Login(mgr, store, "god", hash, "hunter2", true)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := VerifyAccess(mgr, store, pair.AccessToken, ScopeScripts); err != nil {
		t.Fatalf("VerifyAccess with scripts scope: %v", err)
	}
}

func TestNonImmortalLacksScriptsScope(t *testing.T) {
	mgr := NewManager("test-secret")
	store := newMemStore()
	hash, _ := HashPassword("hunter2")

	pair, err := Login(mgr, store, "mortal", hash, "hunter2", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := VerifyAccess(mgr, store, pair.AccessToken, ScopeScripts); err != ErrInadequateScope {
		t.Fatalf("VerifyAccess err = %v, want ErrInadequateScope", err)
	}
}

func TestSecondLoginSupersedesFirstAccessToken(t *testing.T) {
	mgr := NewManager("test-secret")
	store := newMemStore()
	hash, _ := HashPassword("hunter2")

	first, err := Login(mgr, store, "alice", hash, "hunter2", false)
	if err != nil {
		t.Fatalf("first Login: %v", err)
	}
	if _, err := Login(mgr, store, "alice", hash, "hunter2", false); err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if _, err := VerifyAccess(mgr, store, first.AccessToken); err != ErrTokenSuperseded {
		t.Fatalf("VerifyAccess on superseded token err = %v, want ErrTokenSuperseded", err)
	}
	// The forced logout clears the session entirely: a second check
	// fails the same way rather than leaving the store in a partial state.
	if _, ok, _ := store.AccessIssuedAt("alice"); ok {
		t.Fatal("Logout triggered by supersession did not clear the access issue time")
	}
}

func TestRefreshMintsNewPairAndSupersedesOldRefreshToken(t *testing.T) {
	mgr := NewManager("test-secret")
	store := newMemStore()
	hash, _ := HashPassword("hunter2")

	first, err := Login(mgr, store, "alice", hash, "hunter2", false)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := Refresh(mgr, store, first.RefreshToken, false)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if _, err := VerifyAccess(mgr, store, second.AccessToken); err != nil {
		t.Fatalf("VerifyAccess on refreshed token: %v", err)
	}
	if _, err := Refresh(mgr, store, first.RefreshToken, false); err != ErrTokenSuperseded {
		t.Fatalf("reusing a consumed refresh token err = %v, want ErrTokenSuperseded", err)
	}
}

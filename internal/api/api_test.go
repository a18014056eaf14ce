package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/remud/internal/auth"
	"example.com/remud/internal/scripting"
	"example.com/remud/internal/store"
	"example.com/remud/internal/systems"
	"example.com/remud/internal/world"
)

func newTestServer(t *testing.T) (*Server, *store.PlayerRepo) {
	t.Helper()
	st := store.NewMemoryStore()
	players := store.NewPlayerRepo(st)
	scripts := store.NewScriptRepo(st)
	jwt := auth.NewManager("test-secret")

	w := world.New()
	room := w.Spawn()
	rooms := world.NewRooms()
	rooms.Insert(world.VoidRoomId, room)

	sys := &systems.Systems{
		World:      w,
		Rooms:      rooms,
		Objects:    world.NewObjects(),
		Players:    world.NewPlayers(),
		Prototypes: world.NewPrototypes(),
		Updates:    &world.Updates{},
	}
	rt := scripting.NewRuntime(nil)

	srv := NewServer(players, scripts, jwt, sys, rt, nil, nil, nil)
	return srv, players
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)
	return rec
}

func TestLoginRejectsUnknownPlayer(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"username": "nobody", "password": "whatever",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestLoginThenScriptsReadAllRoundTrip(t *testing.T) {
	srv, players := newTestServer(t)
	hash, err := auth.HashPassword("hunter2222")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if err := players.CreateWithIDs("god", hash, world.NewPlayers()); err != nil {
		t.Fatalf("CreateWithIDs: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"username": "god", "password": "hunter2222",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var tokens tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tokens); err != nil {
		t.Fatalf("decode tokens: %v", err)
	}
	if tokens.AccessToken == "" {
		t.Fatal("login returned an empty access token")
	}

	rec = doJSON(t, srv, http.MethodPost, "/scripts/read/all", nil, tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("read/all status = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestScriptsEndpointRejectsMissingScope(t *testing.T) {
	srv, players := newTestServer(t)
	hash, _ := auth.HashPassword("notanimmortal")
	if err := players.CreateWithIDs("mortal", hash, world.NewPlayers()); err != nil {
		t.Fatalf("CreateWithIDs: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"username": "mortal", "password": "notanimmortal",
	}, "")
	var tokens tokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &tokens)

	rec = doJSON(t, srv, http.MethodPost, "/scripts/read/all", nil, tokens.AccessToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (mortal lacks the scripts scope)", rec.Code)
	}
}

func TestScriptCreateRejectsBadTrigger(t *testing.T) {
	srv, players := newTestServer(t)
	hash, _ := auth.HashPassword("godmode12")
	if err := players.CreateWithIDs("god", hash, world.NewPlayers()); err != nil {
		t.Fatalf("CreateWithIDs: %v", err)
	}

	rec := doJSON(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"username": "god", "password": "godmode12",
	}, "")
	var tokens tokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &tokens)

	rec = doJSON(t, srv, http.MethodPost, "/scripts/create", scriptRequest{
		Name: "bad", Trigger: "NotATrigger", Code: "x = 1",
	}, tokens.AccessToken)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body errorBody
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Message != "BAD_TRIGGER" {
		t.Fatalf("message = %q, want BAD_TRIGGER", body.Message)
	}
}

func TestScriptCreateDuplicateNameConflicts(t *testing.T) {
	srv, players := newTestServer(t)
	hash, _ := auth.HashPassword("godmode12")
	if err := players.CreateWithIDs("god", hash, world.NewPlayers()); err != nil {
		t.Fatalf("CreateWithIDs: %v", err)
	}
	rec := doJSON(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"username": "god", "password": "godmode12",
	}, "")
	var tokens tokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &tokens)

	req := scriptRequest{Name: "greeter", Trigger: string(world.TriggerSay), Code: "-- noop"}
	rec = doJSON(t, srv, http.MethodPost, "/scripts/create", req, tokens.AccessToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("first create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodPost, "/scripts/create", req, tokens.AccessToken)
	if rec.Code != http.StatusConflict {
		t.Fatalf("second create status = %d, want 409", rec.Code)
	}
}

func TestOldAccessTokenRejectedAfterRefresh(t *testing.T) {
	srv, players := newTestServer(t)
	hash, _ := auth.HashPassword("godmode12")
	if err := players.CreateWithIDs("god", hash, world.NewPlayers()); err != nil {
		t.Fatalf("CreateWithIDs: %v", err)
	}
	rec := doJSON(t, srv, http.MethodPost, "/auth/login", map[string]string{
		"username": "god", "password": "godmode12",
	}, "")
	var first tokenResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &first)

	rec = doJSON(t, srv, http.MethodPost, "/auth/refresh", map[string]string{
		"refresh_token": first.RefreshToken,
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodPost, "/scripts/read/all", nil, first.AccessToken)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status using pre-refresh access token = %d, want 401", rec.Code)
	}
}

// Package api provides the HTTP JSON surface: login/refresh/logout token
// issuance, the scripts CRUD endpoints the HTTP server task forwards from
// the client, and a handful of admin endpoints for edits that are
// structured JSON by nature (object override fields, script hook
// attachment) rather than a line command.
//
// @title ReMUD Admin & Auth API
// @version 1.0
// @description HTTP control surface for a ReMUD world: player auth,
// @description script CRUD, and admin object/hook editing.
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @BasePath /
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Enter 'Bearer {token}' to authorize
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"example.com/remud/internal/auth"
	"example.com/remud/internal/engine"
	"example.com/remud/internal/scripting"
	"example.com/remud/internal/store"
	"example.com/remud/internal/systems"
)

type contextKey string

const playerKey contextKey = "player"

// Server wires the store's PlayerRepo/ScriptRepo, the token manager, the
// live Systems (for the admin object/hook endpoints, which mutate the
// world directly rather than going through the action pipeline), and a
// compile-only scripting.Runtime into a chi router.
type Server struct {
	Router *chi.Mux

	players *store.PlayerRepo
	scripts *store.ScriptRepo
	jwt     *auth.Manager
	sys     *systems.Systems
	runtime *scripting.Runtime
	eng     *engine.Engine
	logger  *zap.Logger
}

func NewServer(players *store.PlayerRepo, scripts *store.ScriptRepo, jwt *auth.Manager, sys *systems.Systems, runtime *scripting.Runtime, eng *engine.Engine, logger *zap.Logger, corsOrigins []string) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(corsOrigins))

	s := &Server{
		Router:  r,
		players: players,
		scripts: scripts,
		jwt:     jwt,
		sys:     sys,
		runtime: runtime,
		eng:     eng,
		logger:  logger,
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Post("/auth/login", s.login)
	r.Post("/auth/refresh", s.refresh)

	r.Group(func(r chi.Router) {
		r.Use(s.requireScopes(auth.ScopeAccess))
		r.Post("/auth/logout", s.logout)

		r.Route("/scripts", func(r chi.Router) {
			r.Use(s.requireScopes(auth.ScopeScripts))
			r.Post("/create", s.scriptsCreate)
			r.Post("/read", s.scriptsRead)
			r.Post("/read/all", s.scriptsReadAll)
			r.Post("/update", s.scriptsUpdate)
			r.Post("/delete", s.scriptsDelete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireScopes(auth.ScopeScripts))
			r.Post("/objects/override", s.objectOverrideSet)
			r.Post("/objects/inherit", s.objectOverrideClear)
			r.Post("/hooks/attach", s.hooksAttach)
			r.Post("/hooks/detach", s.hooksDetach)
			r.Get("/events", s.adminEvents)
		})
	})

	return s
}

// corsMiddleware mirrors the teacher's allow-everything handler, narrowed
// to the configured origin list when one was given; an empty list keeps
// the permissive "*" behavior for local/dev use.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case len(allowed) == 0:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// errorBody is the stable {code,message} shape spec.md §6 requires on
// every non-2xx response, message being a symbolic token rather than
// free text.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, token string) {
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Code: status, Message: token})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// requireScopes builds middleware verifying the bearer token carries every
// scope listed, on top of the baseline "access" scope VerifyAccess itself
// always requires.
func (s *Server) requireScopes(scopes ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
				return
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")
			player, err := auth.VerifyAccess(s.jwt, s.players, token, scopes...)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
				return
			}
			ctx := context.WithValue(r.Context(), playerKey, player)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// tokenResponse is the body both login and refresh return on success.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// login godoc
// @Summary Authenticate a player
// @Description Verify username/password and issue an access/refresh token pair
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body loginRequest true "Credentials"
// @Success 200 {object} tokenResponse
// @Failure 400 {object} errorBody
// @Failure 401 {object} errorBody
// @Router /auth/login [post]
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	hash, ok := s.players.PasswordHash(req.Username)
	if !ok {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}
	immortal := s.players.Immortal(req.Username)
	pair, err := auth.Login(s.jwt, s.players, req.Username, hash, req.Password, immortal)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}
	writeJSON(w, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// refresh godoc
// @Summary Rotate a token pair
// @Description Exchange a still-valid refresh token for a new access/refresh pair, invalidating the old one
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body refreshRequest true "Refresh token"
// @Success 200 {object} tokenResponse
// @Failure 401 {object} errorBody
// @Router /auth/refresh [post]
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST")
		return
	}
	claims, err := s.jwt.Verify(req.RefreshToken)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}
	immortal := s.players.Immortal(claims.Subject)
	pair, err := auth.Refresh(s.jwt, s.players, req.RefreshToken, immortal)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED")
		return
	}
	writeJSON(w, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// logout godoc
// @Summary Invalidate the current session
// @Tags Authentication
// @Security BearerAuth
// @Success 200
// @Failure 401 {object} errorBody
// @Router /auth/logout [post]
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	player := playerFrom(r.Context())
	_ = s.players.Logout(player)
	w.WriteHeader(http.StatusOK)
}

func playerFrom(ctx context.Context) string {
	p, _ := ctx.Value(playerKey).(string)
	return p
}

// logInternal reports an unexpected store/journal error behind a 500. A nil
// logger (the zero value tests construct a Server with) is a silent no-op.
func (s *Server) logInternal(route string, err error) {
	if s.logger == nil {
		return
	}
	s.logger.Error("api: internal error", zap.String("route", route), zap.Error(err))
}

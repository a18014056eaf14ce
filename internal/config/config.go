// Package config resolves the server's startup contract (spec.md §6 "CLI &
// environment"): telnet port, HTTP port, optional TLS domain/contact email,
// an optional CORS origin list, a database path (or "in-memory"), and a
// key-storage directory, each overridable by flag or environment variable
// in the teacher's getEnv/getEnvInt/getEnvBool style.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the fully resolved startup configuration, validated and with
// its filesystem side effects (key directory, DB parent directory) already
// applied by Load.
type Config struct {
	TelnetAddr string
	HTTPAddr   string

	TLSDomain string
	TLSEmail  string

	CORSOrigins []string

	// DBPath is either a MySQL DSN or the literal "in-memory" (spec.md's
	// "database path (or \"in-memory\")").
	DBPath string

	KeyDir string

	JWTSecret string
}

// MemoryMode reports whether DBPath selects the in-memory store rather
// than a real database connection.
func (c Config) MemoryMode() bool { return c.DBPath == "in-memory" }

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Load parses flags (falling back to environment variables for their
// defaults, and then to a hardcoded default of its own), validates the
// TLS/email pairing, and creates the key-storage and database-parent
// directories if they don't already exist. args is normally os.Args[1:].
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("remud", flag.ContinueOnError)

	telnetPort := fs.Int("telnet-port", getEnvInt("REMUD_TELNET_PORT", 4000), "telnet listen port")
	httpPort := fs.Int("http-port", getEnvInt("REMUD_HTTP_PORT", 8080), "HTTP API listen port")
	tlsDomain := fs.String("tls-domain", getEnv("REMUD_TLS_DOMAIN", ""), "domain to request a TLS certificate for (optional)")
	tlsEmail := fs.String("tls-email", getEnv("REMUD_TLS_EMAIL", ""), "contact email for TLS certificate issuance (required with -tls-domain)")
	cors := fs.String("cors-origins", getEnv("REMUD_CORS_ORIGINS", ""), "comma-separated list of allowed CORS origins")
	dbPath := fs.String("db", getEnv("REMUD_DB", "in-memory"), "database DSN, or \"in-memory\"")
	keyDir := fs.String("key-dir", getEnv("REMUD_KEY_DIR", "./keys"), "directory holding the JWT signing key")
	jwtSecret := fs.String("jwt-secret", getEnv("REMUD_JWT_SECRET", ""), "JWT signing secret (read from key-dir if empty)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		TelnetAddr:  fmt.Sprintf(":%d", *telnetPort),
		HTTPAddr:    fmt.Sprintf(":%d", *httpPort),
		TLSDomain:   *tlsDomain,
		TLSEmail:    *tlsEmail,
		CORSOrigins: splitCORS(*cors),
		DBPath:      *dbPath,
		KeyDir:      *keyDir,
		JWTSecret:   *jwtSecret,
	}

	if cfg.TLSDomain != "" && cfg.TLSEmail == "" {
		return Config{}, fmt.Errorf("config: -tls-domain requires -tls-email")
	}

	if err := os.MkdirAll(cfg.KeyDir, 0o700); err != nil {
		return Config{}, fmt.Errorf("config: create key dir: %w", err)
	}
	if cfg.JWTSecret == "" {
		secret, err := loadOrGenerateJWTSecret(cfg.KeyDir)
		if err != nil {
			return Config{}, fmt.Errorf("config: resolve jwt secret: %w", err)
		}
		cfg.JWTSecret = secret
	}
	if !cfg.MemoryMode() {
		if dir := filepath.Dir(dbFilePath(cfg.DBPath)); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return Config{}, fmt.Errorf("config: create db parent dir: %w", err)
			}
		}
	}

	return cfg, nil
}

// loadOrGenerateJWTSecret reads the signing secret persisted under
// keyDir, generating and storing a fresh random one on first run so
// tokens issued before a restart stay valid afterward.
func loadOrGenerateJWTSecret(keyDir string) (string, error) {
	path := filepath.Join(keyDir, "jwt.secret")
	if b, err := os.ReadFile(path); err == nil {
		return strings.TrimSpace(string(b)), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(secret), 0o600); err != nil {
		return "", fmt.Errorf("write secret: %w", err)
	}
	return secret, nil
}

func splitCORS(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dbFilePath extracts a filesystem-like path component from a DSN for the
// "create the parent directory" requirement. A MySQL DSN has no such path
// in the common case (a TCP host:port), so this only does useful work for
// a file-path-shaped DBPath (e.g. a sqlite-style path used in tests); a
// network DSN's "parent directory" is simply "." and MkdirAll is a no-op.
func dbFilePath(dsn string) string {
	if strings.Contains(dsn, "@") || strings.Contains(dsn, "://") {
		return "."
	}
	return dsn
}

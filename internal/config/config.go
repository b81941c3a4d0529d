package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

// Config holds client runtime settings. Flags win over environment
// variables, environment variables win over built-in defaults; a .env file
// in the working directory seeds the environment.
type Config struct {
	SocketURL    string
	BackendURL   string
	Email        string
	Password     string
	Token        string
	SealSecret   string
	DataDir      string
	CredsDB      string
	ArtifactsDB  string
	ArtifactsDir string
	JoinTimeout  time.Duration
	UseTUI       bool
}

// Load parses args (without the program name) into a Config.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	fs := flag.NewFlagSet("sponsorlink", flag.ContinueOnError)
	fs.StringVar(&cfg.SocketURL, "socket", envOr("SPONSORLINK_SOCKET_URL", "ws://127.0.0.1:8090/ws"), "realtime socket url")
	fs.StringVar(&cfg.BackendURL, "backend", envOr("SPONSORLINK_BACKEND_URL", "http://127.0.0.1:8090"), "rest backend base url")
	fs.StringVar(&cfg.Email, "email", envOr("SPONSORLINK_EMAIL", ""), "login email")
	fs.StringVar(&cfg.Password, "password", envOr("SPONSORLINK_PASSWORD", ""), "login password")
	fs.StringVar(&cfg.Token, "token", envOr("SPONSORLINK_TOKEN", ""), "bearer token (skips login)")
	fs.StringVar(&cfg.SealSecret, "seal-secret", envOr("SPONSORLINK_SEAL_SECRET", ""), "passphrase sealing the stored token; empty stores it in plain")
	fs.StringVar(&cfg.DataDir, "data-dir", envOr("SPONSORLINK_DATA_DIR", "sponsorlink-data"), "base directory for local state")
	fs.DurationVar(&cfg.JoinTimeout, "join-timeout", 5*time.Second, "room join acknowledgement timeout")
	fs.BoolVar(&cfg.UseTUI, "tui", false, "enable terminal UI mode")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.ensureDirs()
	return cfg, nil
}

func (cfg *Config) ensureDirs() {
	if cfg.DataDir == "" {
		cfg.DataDir = "sponsorlink-data"
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("init data dir: %v", err)
	}
	cfg.CredsDB = filepath.Join(cfg.DataDir, "creds.db")
	cfg.ArtifactsDB = filepath.Join(cfg.DataDir, "artifacts.db")
	cfg.ArtifactsDir = filepath.Join(cfg.DataDir, "files")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

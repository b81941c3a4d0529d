// Package devstub is a self-contained stand-in for the production backend:
// login, uploads, the attachment query and the realtime socket, enough to
// run and test the client end to end.
package devstub

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"sponsorlink/internal/message"
	"sponsorlink/internal/store"
)

const tokenTTL = 24 * time.Hour

// Account is a registered user of the stub backend.
type Account struct {
	ID           string
	Role         string
	Email        string
	PasswordHash []byte
}

// Options configures the stub. Artifacts may be nil; uploads then fail.
type Options struct {
	Secret    string
	Artifacts *store.ArtifactStore
}

// Server bundles the HTTP handlers, the socket hub and the in-memory state.
type Server struct {
	secret    []byte
	artifacts *store.ArtifactStore
	metrics   *Metrics
	upgrader  websocket.Upgrader

	mu       sync.Mutex
	accounts map[string]Account
	conns    map[string]*wsConn
	history  []message.Message
}

func New(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = "devstub-secret"
	}
	return &Server{
		secret:    []byte(opts.Secret),
		artifacts: opts.Artifacts,
		metrics:   &Metrics{},
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		accounts: make(map[string]Account),
		conns:    make(map[string]*wsConn),
	}
}

// AddAccount registers a user with a bcrypt-hashed password.
func (s *Server) AddAccount(email, password, id, role string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[email] = Account{ID: id, Role: role, Email: email, PasswordHash: hash}
	return nil
}

// Metrics reports a point-in-time copy of the counters.
func (s *Server) Metrics() MetricsSnapshot {
	return s.metrics.snapshot()
}

// Router wires up chi routes, middleware and handlers ready for
// http.ListenAndServe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.loggingMiddleware())

	r.Post("/login", s.loginHandler())
	r.Get("/healthz", s.healthHandler())
	r.Get("/ws", s.socketHandler())
	// Media bytes are served like a CDN would: the url itself is the secret.
	r.Get("/files/{id}", s.fileHandler())

	r.With(s.authenticated()).Post("/upload", s.uploadHandler())
	r.With(s.authenticated()).Get("/attachments", s.attachmentsHandler())

	return r
}

// IssueToken mints an HS256 token carrying the user's id and role.
func (s *Server) IssueToken(userID, role string) (string, error) {
	claims := jwt.MapClaims{
		"userId": userID,
		"role":   role,
		"exp":    time.Now().Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

var errBadToken = errors.New("devstub: invalid token")

func (s *Server) verifyToken(raw string) (string, string, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadToken
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errBadToken
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		return "", "", errBadToken
	}
	role, _ := claims["role"].(string)
	return userID, role, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.LoginAttempts.Add(1)
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		account, ok := s.accounts[req.Email]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "unknown user", http.StatusUnauthorized)
			return
		}
		if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(req.Password)); err != nil {
			http.Error(w, "wrong password", http.StatusUnauthorized)
			return
		}
		token, err := s.IssueToken(account.ID, account.Role)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(loginResponse{Token: token, UserID: account.ID, Role: account.Role})
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

type ctxUserKey struct{}

type authedUser struct {
	ID   string
	Role string
}

func (s *Server) authenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if raw == "" {
				raw = r.URL.Query().Get("token")
			}
			userID, role, err := s.verifyToken(raw)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := contextWithUser(r.Context(), authedUser{ID: userID, Role: role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

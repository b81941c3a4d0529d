package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.etcd.io/bbolt"

	"sponsorlink/internal/seal"
	"sponsorlink/internal/session"
)

const (
	credsBucket = "credentials"
	credsKey    = "current"
)

// CredStore is the local analogue of browser session storage: it keeps the
// auth token, user id and role between runs, with the token sealed at rest.
// It satisfies session.CredentialSource.
type CredStore struct {
	db     *bbolt.DB
	keeper *seal.Keeper
}

type credRecord struct {
	SealedToken []byte    `json:"sealed_token"`
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	SavedAt     time.Time `json:"saved_at"`
}

func OpenCredStore(path string, keeper *seal.Keeper) (*CredStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(credsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &CredStore{db: db, keeper: keeper}, nil
}

func (s *CredStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists credentials. When userID is empty it is recovered from the
// token claims, so a bare login response is enough to seed the store.
func (s *CredStore) Save(token, userID, role string) error {
	if token == "" {
		return errors.New("store: empty token")
	}
	if userID == "" {
		claimID, claimRole, err := IdentityFromToken(token)
		if err != nil {
			return fmt.Errorf("store: derive identity: %w", err)
		}
		userID = claimID
		if role == "" {
			role = claimRole
		}
	}
	sealed, err := s.keeper.Seal([]byte(token))
	if err != nil {
		return err
	}
	record := credRecord{SealedToken: sealed, UserID: userID, Role: role, SavedAt: time.Now().UTC()}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(credsBucket)).Put([]byte(credsKey), data)
	})
}

// Load returns the stored credentials, or zero credentials when none exist.
func (s *CredStore) Load() (session.Credentials, error) {
	var record credRecord
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(credsBucket)).Get([]byte(credsKey))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil || !found {
		return session.Credentials{}, err
	}
	token, err := s.keeper.Open(record.SealedToken)
	if err != nil {
		return session.Credentials{}, fmt.Errorf("store: unseal token: %w", err)
	}
	return session.Credentials{Token: string(token), UserID: record.UserID, Role: record.Role}, nil
}

// Clear drops the stored credentials, e.g. on logout.
func (s *CredStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(credsBucket)).Delete([]byte(credsKey))
	})
}

// IdentityFromToken reads the user id and role claims without verifying
// the signature; verification is the backend's job, the client only needs
// the identity for the handshake.
func IdentityFromToken(token string) (string, string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", "", err
	}
	userID, _ := claims["userId"].(string)
	if userID == "" {
		if sub, err := claims.GetSubject(); err == nil {
			userID = sub
		}
	}
	if userID == "" {
		return "", "", errors.New("store: token carries no user id")
	}
	role, _ := claims["role"].(string)
	return userID, role, nil
}

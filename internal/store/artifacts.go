package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const artifactsBucket = "artifacts"

var ErrArtifactNotFound = errors.New("store: artifact not found")

// ArtifactRecord describes one stored binary: an uploaded chat attachment
// or a signed output waiting to be shared.
type ArtifactRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Mime      string    `json:"mime,omitempty"`
	Size      int64     `json:"size"`
	Owner     string    `json:"owner"`
	CreatedAt time.Time `json:"created_at"`
}

type artifactEntry struct {
	ArtifactRecord
	Path string `json:"path"`
}

// ArtifactStore keeps artifact bytes on disk and their metadata in BoltDB.
type ArtifactStore struct {
	db  *bbolt.DB
	dir string
}

func OpenArtifactStore(dbPath, dir string) (*ArtifactStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(artifactsBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ArtifactStore{db: db, dir: dir}, nil
}

func (s *ArtifactStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *ArtifactStore) Save(name, owner, mime string, src io.Reader) (ArtifactRecord, error) {
	cleaned := sanitizeName(name)
	if cleaned == "" {
		cleaned = "upload.bin"
	}
	id := uuid.NewString()
	path := filepath.Join(s.dir, id)
	dst, err := os.Create(path)
	if err != nil {
		return ArtifactRecord{}, err
	}
	size, err := io.Copy(dst, src)
	closeErr := dst.Close()
	if err != nil {
		_ = os.Remove(path)
		return ArtifactRecord{}, err
	}
	if closeErr != nil {
		_ = os.Remove(path)
		return ArtifactRecord{}, closeErr
	}

	entry := artifactEntry{
		ArtifactRecord: ArtifactRecord{
			ID:        id,
			Name:      cleaned,
			Mime:      mime,
			Size:      size,
			Owner:     owner,
			CreatedAt: time.Now().UTC(),
		},
		Path: path,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return ArtifactRecord{}, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(artifactsBucket)).Put([]byte(id), data)
	})
	if err != nil {
		_ = os.Remove(path)
		return ArtifactRecord{}, err
	}
	return entry.ArtifactRecord, nil
}

func (s *ArtifactStore) Get(id string) (ArtifactRecord, error) {
	entry, err := s.entry(id)
	if err != nil {
		return ArtifactRecord{}, err
	}
	return entry.ArtifactRecord, nil
}

// Open returns the record and a reader positioned at the stored bytes.
func (s *ArtifactStore) Open(id string) (ArtifactRecord, io.ReadCloser, error) {
	entry, err := s.entry(id)
	if err != nil {
		return ArtifactRecord{}, nil, err
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		return ArtifactRecord{}, nil, err
	}
	return entry.ArtifactRecord, f, nil
}

func (s *ArtifactStore) List(limit int) ([]ArtifactRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	records := make([]ArtifactRecord, 0, limit)
	err := s.db.View(func(tx *bbolt.Tx) error {
		cursor := tx.Bucket([]byte(artifactsBucket)).Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			var entry artifactEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				continue
			}
			records = append(records, entry.ArtifactRecord)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (s *ArtifactStore) entry(id string) (artifactEntry, error) {
	var entry artifactEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(artifactsBucket)).Get([]byte(id))
		if data == nil {
			return ErrArtifactNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return artifactEntry{}, err
	}
	return entry, nil
}

func sanitizeName(name string) string {
	cleaned := strings.TrimSpace(filepath.Base(name))
	if cleaned == "" || cleaned == "." || cleaned == string(filepath.Separator) {
		return ""
	}
	return cleaned
}

// DownloadPath is where a locally saved signed artifact lands.
func (s *ArtifactStore) DownloadPath(fileName string) string {
	return filepath.Join(s.dir, sanitizeName(fileName))
}

// SaveLocal writes a finished artifact under its generated filename, the
// local-download exit of the signing workflow.
func (s *ArtifactStore) SaveLocal(fileName string, data []byte) (string, error) {
	path := s.DownloadPath(fileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("store: write artifact: %w", err)
	}
	return path, nil
}

// Package registry persists trained models and their metadata in BoltDB.
//
// Every Save creates a new version of a model id and makes it the active
// one. Older versions stay available for activation and rollback until the
// id is deleted.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"tabml/internal/model"
)

const (
	modelsBucket   = "models"   // gob-encoded models keyed by id/version
	metadataBucket = "metadata" // JSON metadata keyed by id/version
	versionsBucket = "versions" // JSON version index keyed by id

	// FileName is the database file created under the data path.
	FileName = "tabml-registry.db"
)

var (
	ErrNotFound        = errors.New("model not found")
	ErrVersionNotFound = errors.New("model version not found")
	ErrNoRollback      = errors.New("no previous version available for rollback")
)

// Version describes one stored version of a model id.
type Version struct {
	Version   string    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Algorithm string    `json:"algorithm"`
	F1Score   float64   `json:"f1_score"`
	IsActive  bool      `json:"is_active"`
}

// Store is a versioned model registry backed by BoltDB. It is safe for
// concurrent use.
type Store struct {
	db  *bbolt.DB
	now func() time.Time
}

// New opens (or creates) the registry database inside dataPath.
func New(dataPath string) (*Store, error) {
	if err := os.MkdirAll(dataPath, 0o750); err != nil {
		return nil, fmt.Errorf("create data path: %w", err)
	}
	dbPath := filepath.Join(dataPath, FileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{modelsBucket, metadataBucket, versionsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores m and meta as a new version of meta.ID, activates it and
// returns the version string.
func (s *Store) Save(m *model.Model, meta model.Metadata) (string, error) {
	if meta.ID == "" {
		return "", errors.New("metadata id is empty")
	}
	blob, err := model.Marshal(m)
	if err != nil {
		return "", err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}

	created := s.now().UTC()
	version := fmt.Sprintf("%s-%s", created.Format("20060102-150405.000000"), uuid.NewString()[:8])

	err = s.db.Update(func(tx *bbolt.Tx) error {
		versions, err := readVersions(tx, meta.ID)
		if err != nil {
			return err
		}

		key := versionKey(meta.ID, version)
		if err := tx.Bucket([]byte(modelsBucket)).Put(key, blob); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(metadataBucket)).Put(key, metaJSON); err != nil {
			return err
		}

		for i := range versions {
			versions[i].IsActive = false
		}
		versions = append(versions, Version{
			Version:   version,
			CreatedAt: created,
			Algorithm: meta.Algorithm,
			F1Score:   meta.Score(),
			IsActive:  true,
		})
		return writeVersions(tx, meta.ID, versions)
	})
	if err != nil {
		return "", err
	}
	return version, nil
}

// Load returns the active model of id and its metadata.
func (s *Store) Load(id string) (*model.Model, model.Metadata, error) {
	var (
		m    *model.Model
		meta model.Metadata
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := activeVersion(tx, id)
		if err != nil {
			return err
		}
		m, meta, err = readVersion(tx, id, v.Version)
		return err
	})
	return m, meta, err
}

// LoadVersion returns a specific version of id.
func (s *Store) LoadVersion(id, version string) (*model.Model, model.Metadata, error) {
	var (
		m    *model.Model
		meta model.Metadata
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		m, meta, err = readVersion(tx, id, version)
		return err
	})
	return m, meta, err
}

// Metadata returns the metadata of the active version of id.
func (s *Store) Metadata(id string) (model.Metadata, error) {
	var meta model.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := activeVersion(tx, id)
		if err != nil {
			return err
		}
		meta, err = readMetadata(tx, id, v.Version)
		return err
	})
	return meta, err
}

// List returns the active metadata of every model id, sorted by id.
func (s *Store) List() ([]model.Metadata, error) {
	var out []model.Metadata
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(versionsBucket)).ForEach(func(k, _ []byte) error {
			id := string(k)
			v, err := activeVersion(tx, id)
			if errors.Is(err, ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			meta, err := readMetadata(tx, id, v.Version)
			if err != nil {
				return err
			}
			out = append(out, meta)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Versions returns every stored version of id, newest first.
func (s *Store) Versions(id string) ([]Version, error) {
	var versions []Version
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		versions, err = readVersions(tx, id)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("%q: %w", id, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// stored oldest first
	for i, j := 0, len(versions)-1; i < j; i, j = i+1, j-1 {
		versions[i], versions[j] = versions[j], versions[i]
	}
	return versions, nil
}

// Active returns the active version of id.
func (s *Store) Active(id string) (Version, error) {
	var v Version
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		v, err = activeVersion(tx, id)
		return err
	})
	return v, err
}

// Activate makes version the active version of id.
func (s *Store) Activate(id, version string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		versions, err := readVersions(tx, id)
		if err != nil {
			return err
		}
		found := false
		for i := range versions {
			versions[i].IsActive = versions[i].Version == version
			found = found || versions[i].IsActive
		}
		if !found {
			return fmt.Errorf("%s@%s: %w", id, version, ErrVersionNotFound)
		}
		return writeVersions(tx, id, versions)
	})
}

// Rollback activates the version saved just before the active one and
// returns it. Lookup and activation share one transaction.
func (s *Store) Rollback(id string) (string, error) {
	var previous string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		versions, err := readVersions(tx, id)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("%q: %w", id, ErrNotFound)
		}

		// stored oldest first
		current := -1
		for i, v := range versions {
			if v.IsActive {
				current = i
				break
			}
		}
		if current <= 0 {
			return fmt.Errorf("%q: %w", id, ErrNoRollback)
		}

		previous = versions[current-1].Version
		for i := range versions {
			versions[i].IsActive = i == current-1
		}
		return writeVersions(tx, id, versions)
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Delete removes every version of id.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		versions, err := readVersions(tx, id)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("%q: %w", id, ErrNotFound)
		}
		for _, v := range versions {
			key := versionKey(id, v.Version)
			if err := tx.Bucket([]byte(modelsBucket)).Delete(key); err != nil {
				return err
			}
			if err := tx.Bucket([]byte(metadataBucket)).Delete(key); err != nil {
				return err
			}
		}
		return tx.Bucket([]byte(versionsBucket)).Delete([]byte(id))
	})
}

func versionKey(id, version string) []byte {
	return []byte(id + "/" + version)
}

func readVersions(tx *bbolt.Tx, id string) ([]Version, error) {
	data := tx.Bucket([]byte(versionsBucket)).Get([]byte(id))
	if data == nil {
		return nil, nil
	}
	var versions []Version
	if err := json.Unmarshal(data, &versions); err != nil {
		return nil, fmt.Errorf("unmarshal versions of %q: %w", id, err)
	}
	return versions, nil
}

func writeVersions(tx *bbolt.Tx, id string, versions []Version) error {
	data, err := json.Marshal(versions)
	if err != nil {
		return fmt.Errorf("marshal versions: %w", err)
	}
	return tx.Bucket([]byte(versionsBucket)).Put([]byte(id), data)
}

func activeVersion(tx *bbolt.Tx, id string) (Version, error) {
	versions, err := readVersions(tx, id)
	if err != nil {
		return Version{}, err
	}
	for _, v := range versions {
		if v.IsActive {
			return v, nil
		}
	}
	return Version{}, fmt.Errorf("%q: %w", id, ErrNotFound)
}

func readVersion(tx *bbolt.Tx, id, version string) (*model.Model, model.Metadata, error) {
	blob := tx.Bucket([]byte(modelsBucket)).Get(versionKey(id, version))
	if blob == nil {
		return nil, model.Metadata{}, fmt.Errorf("%s@%s: %w", id, version, ErrVersionNotFound)
	}
	m, err := model.Unmarshal(blob)
	if err != nil {
		return nil, model.Metadata{}, err
	}
	meta, err := readMetadata(tx, id, version)
	if err != nil {
		return nil, model.Metadata{}, err
	}
	return m, meta, nil
}

func readMetadata(tx *bbolt.Tx, id, version string) (model.Metadata, error) {
	var meta model.Metadata
	data := tx.Bucket([]byte(metadataBucket)).Get(versionKey(id, version))
	if data == nil {
		return meta, fmt.Errorf("%s@%s: %w", id, version, ErrVersionNotFound)
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return meta, nil
}

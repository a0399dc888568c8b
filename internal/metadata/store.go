package metadata

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"complaintrag/internal/domain"
)

const fileVersion = 1

// file is the gob-encoded on-disk form.
type file struct {
	Version int
	Records []domain.MetadataRecord
}

// Store holds one record per indexed vector, addressed by position.
type Store struct {
	records []domain.MetadataRecord
}

func NewStore() *Store { return &Store{} }

// AppendAll adds records after the existing ones, preserving order.
func (s *Store) AppendAll(records []domain.MetadataRecord) {
	s.records = append(s.records, records...)
}

// Get returns the record at position. Out of range is a retrieval error.
func (s *Store) Get(position int) (domain.MetadataRecord, error) {
	if position < 0 || position >= len(s.records) {
		return domain.MetadataRecord{}, domain.RetrievalErrorf("metadata position %d out of range [0,%d)", position, len(s.records))
	}
	return s.records[position], nil
}

func (s *Store) Len() int { return len(s.records) }

func (s *Store) Encode(w io.Writer) error {
	return gob.NewEncoder(w).Encode(file{Version: fileVersion, Records: s.records})
}

func Decode(r io.Reader) (*Store, error) {
	var f file
	if err := gob.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if f.Version != fileVersion {
		return nil, fmt.Errorf("unsupported metadata version %d", f.Version)
	}
	return &Store{records: f.Records}, nil
}

// Persist writes the store to path through a temporary file and rename.
func (s *Store) Persist(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := s.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load reads a metadata file. A missing file is a configuration error, an
// undecodable one a consistency error.
func Load(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.ConfigurationErrorf("metadata file %s not found; build the index first", path)
		}
		return nil, domain.ConfigurationErrorf("open metadata %s: %v", path, err)
	}
	defer f.Close()
	s, err := Decode(f)
	if err != nil {
		return nil, domain.ConsistencyErrorf("load metadata %s: %v", path, err)
	}
	return s, nil
}

// Package corpus treats the vector index file and the metadata file as one
// unit: they are written together and loaded together, and position i in
// one always describes position i in the other.
package corpus

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"complaintrag/internal/domain"
	"complaintrag/internal/metadata"
	"complaintrag/internal/vectorstore/flat"
)

// Model identifies the embedding model a corpus must be queried with.
type Model interface {
	ModelID() string
	Dimension() int
}

// Corpus is a loaded index with its aligned metadata.
type Corpus struct {
	Index    *flat.Index
	Metadata *metadata.Store
	ModelID  string
}

// Write stores index and metadata as one unit. Both are written to
// temporary files and synced, then renamed index first. On any failure
// neither file is left behind.
func Write(indexPath, metadataPath string, idx *flat.Index, meta *metadata.Store, modelID string) error {
	if idx.Len() != meta.Len() {
		return domain.ConsistencyErrorf("index has %d vectors but metadata has %d records", idx.Len(), meta.Len())
	}
	if filepath.Clean(indexPath) == filepath.Clean(metadataPath) {
		return domain.ConfigurationErrorf("index and metadata paths are the same: %s", indexPath)
	}

	idxTmp, err := writeTemp(indexPath, func(w io.Writer) error { return idx.Encode(w, modelID) })
	if err != nil {
		return err
	}
	defer os.Remove(idxTmp)
	metaTmp, err := writeTemp(metadataPath, meta.Encode)
	if err != nil {
		return err
	}
	defer os.Remove(metaTmp)

	if err := os.Rename(idxTmp, indexPath); err != nil {
		return err
	}
	if err := os.Rename(metaTmp, metadataPath); err != nil {
		_ = os.Remove(indexPath)
		return err
	}
	return nil
}

func writeTemp(final string, encode func(io.Writer) error) (string, error) {
	dir := filepath.Dir(final)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, filepath.Base(final)+".tmp-*")
	if err != nil {
		return "", err
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// Load reads both files and checks that they agree with each other and with
// the embedding model that will be used for queries.
func Load(indexPath, metadataPath string, model Model) (*Corpus, error) {
	idx, modelID, err := flat.Load(indexPath)
	if err != nil {
		return nil, err
	}
	meta, err := metadata.Load(metadataPath)
	if err != nil {
		return nil, err
	}
	if idx.Len() != meta.Len() {
		return nil, domain.ConsistencyErrorf("index %s has %d vectors but metadata %s has %d records",
			indexPath, idx.Len(), metadataPath, meta.Len())
	}
	if model != nil {
		if modelID != model.ModelID() {
			return nil, domain.ConsistencyErrorf("index was built with model %q, configured model is %q", modelID, model.ModelID())
		}
		if idx.Dimension() != model.Dimension() {
			return nil, domain.ConsistencyErrorf("index dimension %d, embedder dimension %d", idx.Dimension(), model.Dimension())
		}
	}
	return &Corpus{Index: idx, Metadata: meta, ModelID: modelID}, nil
}

// Exists reports whether both files of the unit are present.
func Exists(indexPath, metadataPath string) bool {
	for _, p := range []string{indexPath, metadataPath} {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return false
		}
	}
	return true
}

package flat

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"

	"complaintrag/internal/domain"
)

// File layout, little endian:
//
//	magic   [4]byte "CRVI"
//	version uint16
//	dim     uint32
//	count   uint64
//	model   uint16 length + bytes
//	vectors count*dim float32
//	crc32   uint32 (IEEE, over everything above)
var magic = [4]byte{'C', 'R', 'V', 'I'}

const (
	formatVersion  = 1
	maxModelIDSize = 1024
)

// ErrCorrupt marks an index file that cannot be decoded.
var ErrCorrupt = errors.New("corrupt index file")

type header struct {
	Magic   [4]byte
	Version uint16
	Dim     uint32
	Count   uint64
}

// Encode writes the index and the embedding model id to w.
func (x *Index) Encode(w io.Writer, modelID string) error {
	if len(modelID) > maxModelIDSize {
		return fmt.Errorf("model id too long (%d bytes)", len(modelID))
	}
	x.mu.RLock()
	defer x.mu.RUnlock()

	sum := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, sum))
	h := header{Magic: magic, Version: formatVersion, Dim: uint32(x.dimension), Count: uint64(len(x.vectors))}
	if err := binary.Write(bw, binary.LittleEndian, h); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint16(len(modelID))); err != nil {
		return err
	}
	if _, err := bw.WriteString(modelID); err != nil {
		return err
	}
	buf := make([]byte, 4*x.dimension)
	for _, v := range x.vectors {
		for i, f := range v {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, sum.Sum32())
}

// Decode reads an index written by Encode and returns it with its model id.
func Decode(r io.Reader) (*Index, string, error) {
	sum := crc32.NewIEEE()
	br := bufio.NewReader(r)
	tr := io.TeeReader(br, sum)

	var h header
	if err := binary.Read(tr, binary.LittleEndian, &h); err != nil {
		return nil, "", fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Magic != magic {
		return nil, "", fmt.Errorf("%w: bad magic %q", ErrCorrupt, h.Magic[:])
	}
	if h.Version != formatVersion {
		return nil, "", fmt.Errorf("%w: unsupported version %d", ErrCorrupt, h.Version)
	}
	if h.Dim == 0 {
		return nil, "", fmt.Errorf("%w: zero dimension", ErrCorrupt)
	}
	var n uint16
	if err := binary.Read(tr, binary.LittleEndian, &n); err != nil {
		return nil, "", fmt.Errorf("%w: model id: %v", ErrCorrupt, err)
	}
	if n > maxModelIDSize {
		return nil, "", fmt.Errorf("%w: model id length %d", ErrCorrupt, n)
	}
	model := make([]byte, n)
	if _, err := io.ReadFull(tr, model); err != nil {
		return nil, "", fmt.Errorf("%w: model id: %v", ErrCorrupt, err)
	}

	dim := int(h.Dim)
	x := &Index{dimension: dim}
	buf := make([]byte, 4*dim)
	for c := uint64(0); c < h.Count; c++ {
		if _, err := io.ReadFull(tr, buf); err != nil {
			return nil, "", fmt.Errorf("%w: vector %d: %v", ErrCorrupt, c, err)
		}
		v := make([]float32, dim)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
		x.vectors = append(x.vectors, v)
	}
	want := sum.Sum32()
	// the trailer is read past the tee so it is not hashed
	var got uint32
	if err := binary.Read(br, binary.LittleEndian, &got); err != nil {
		return nil, "", fmt.Errorf("%w: checksum: %v", ErrCorrupt, err)
	}
	if got != want {
		return nil, "", fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	if _, err := br.ReadByte(); err != io.EOF {
		return nil, "", fmt.Errorf("%w: trailing data", ErrCorrupt)
	}
	return x, string(model), nil
}

// Persist writes the index to path through a temporary file and rename.
func (x *Index) Persist(path, modelID string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := x.Encode(tmp, modelID); err != nil {
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

// Load reads an index file. A missing file is a configuration error, an
// undecodable one a consistency error.
func Load(path string) (*Index, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", domain.ConfigurationErrorf("index file %s not found; build the index first", path)
		}
		return nil, "", domain.ConfigurationErrorf("open index %s: %v", path, err)
	}
	defer f.Close()
	x, model, err := Decode(f)
	if err != nil {
		return nil, "", domain.ConsistencyErrorf("load index %s: %v", path, err)
	}
	return x, model, nil
}

package policy

import (
	"encoding/gob"
	"io"

	gzip "github.com/klauspost/pgzip"
	"github.com/pkg/errors"
)

// SaveTo writes the tree as a gzipped gob stream.
func (t *Tree) SaveTo(w io.Writer) error {
	gzw := gzip.NewWriter(w)
	enc := gob.NewEncoder(gzw)
	if err := enc.Encode(t); err != nil {
		return err
	}
	return gzw.Close()
}

// LoadTree reads a tree written by SaveTo.
func LoadTree(r io.Reader) (*Tree, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer gzr.Close()

	t := &Tree{}
	dec := gob.NewDecoder(gzr)
	if err := dec.Decode(t); err != nil {
		return nil, err
	}
	if len(t.Nodes) == 0 {
		return nil, errors.New("policy tree has no nodes")
	}
	return t, nil
}

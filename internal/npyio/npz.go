package npyio

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sort"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"
)

// Array is a named array in an npz archive.
type Array struct {
	Name  string
	Data  []float64
	Shape []int
}

// Vector returns a one-dimensional Array.
func Vector(name string, data []float64) Array {
	return Array{Name: name, Data: data}
}

// Matrix returns a two-dimensional Array from rows of equal length.
func Matrix(name string, rows [][]float64) Array {
	cols := 0
	if len(rows) > 0 {
		cols = len(rows[0])
	}
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		data = append(data, row...)
	}
	return Array{Name: name, Data: data, Shape: []int{len(rows), cols}}
}

// WriteNPZ writes the arrays as a zip of .npy files, in name order.
func WriteNPZ(w io.Writer, arrays []Array) error {
	sorted := append([]Array(nil), arrays...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	z := zip.NewWriter(w)
	for _, a := range sorted {
		f, err := z.Create(a.Name + ".npy")
		if err != nil {
			return err
		}
		if err := Write(f, a.Data, a.Shape...); err != nil {
			return errors.Wrapf(err, "error writing array %v", a.Name)
		}
	}

	return z.Close()
}

func MakeNPZ(output string, arrays []Array) error {
	f, err := os.Create(output)
	if err != nil {
		return err
	}
	defer f.Close()

	b := bufio.NewWriter(f)
	if err := WriteNPZ(b, arrays); err != nil {
		return err
	}
	if err := b.Flush(); err != nil {
		return err
	}
	return f.Close()
}

// ReadNPZ reads every array in an npz archive.
func ReadNPZ(data []byte) (map[string]Array, error) {
	z, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	result := make(map[string]Array, len(z.File))
	for _, f := range z.File {
		r, err := f.Open()
		if err != nil {
			return nil, err
		}
		values, shape, err := Read(r)
		r.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "error reading %v", f.Name)
		}

		name := f.Name[:len(f.Name)-len(".npy")]
		result[name] = Array{Name: name, Data: values, Shape: shape}
	}

	return result, nil
}

// Package npyio writes float64 arrays in the numpy .npy and .npz formats
// so that scores and curves can be plotted outside of Go.
package npyio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var order = binary.LittleEndian

// Write writes v as an array with the given shape. With no shape, v is
// written as a vector.
func Write(w io.Writer, v []float64, shape ...int) error {
	if len(shape) == 0 {
		shape = []int{len(v)}
	}
	size := 1
	for _, d := range shape {
		size *= d
	}
	if size != len(v) {
		return errors.Errorf("shape %v does not hold %d elements", shape, len(v))
	}

	if err := writeHeader(w, shape); err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var buf [8]byte
	for _, x := range v {
		order.PutUint64(buf[:], math.Float64bits(x))
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// The following is adapted from: github.com/sbinet/npyio
var magic = [6]byte{'\x93', 'N', 'U', 'M', 'P', 'Y'}

const (
	majorVersion = byte(2)
	minorVersion = byte(0)
	// magic, version and a uint32 header length.
	preludeSize = len(magic) + 2 + 4
)

func writeHeader(w io.Writer, shape []int) error {
	if err := binary.Write(w, order, magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, order, majorVersion); err != nil {
		return err
	}
	if err := binary.Write(w, order, minorVersion); err != nil {
		return err
	}

	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	shapeStr := strings.Join(dims, ", ")
	if len(shape) == 1 {
		shapeStr += ","
	}

	buf := new(bytes.Buffer)
	fmt.Fprintf(buf,
		"{'descr': '<f8', 'fortran_order': False, 'shape': (%s), }",
		shapeStr)

	// The data must start on a 16-byte boundary, after the trailing newline.
	padding := (16 - (preludeSize+buf.Len()+1)%16) % 16
	buf.Write(bytes.Repeat([]byte{'\x20'}, padding))
	buf.WriteByte('\n')

	buflen := int64(buf.Len())
	if err := binary.Write(w, order, uint32(buflen)); err != nil {
		return err
	}

	if n, err := io.Copy(w, buf); err != nil {
		return err
	} else if n < buflen {
		return io.ErrShortWrite
	}

	return nil
}

var shapeRe = regexp.MustCompile(`'shape': \(([0-9, ]*)\)`)

// Read reads an array written by Write, returning its data and shape.
func Read(r io.Reader) ([]float64, []int, error) {
	var prelude [preludeSize]byte
	if _, err := io.ReadFull(r, prelude[:]); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(prelude[:len(magic)], magic[:]) {
		return nil, nil, errors.New("not a npy file")
	}
	if prelude[len(magic)] != majorVersion {
		return nil, nil, errors.Errorf("unsupported npy version %d", prelude[len(magic)])
	}

	header := make([]byte, order.Uint32(prelude[len(magic)+2:]))
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, err
	}
	if !bytes.Contains(header, []byte("'descr': '<f8'")) {
		return nil, nil, errors.Errorf("unsupported dtype in header %q", header)
	}
	m := shapeRe.FindSubmatch(header)
	if m == nil {
		return nil, nil, errors.Errorf("no shape in header %q", header)
	}

	var shape []int
	size := 1
	for _, field := range strings.Split(string(m[1]), ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := strconv.Atoi(field)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "invalid shape %q", m[1])
		}
		shape = append(shape, d)
		size *= d
	}

	data := make([]float64, size)
	br := bufio.NewReader(r)
	var buf [8]byte
	for i := range data {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return nil, nil, err
		}
		data[i] = math.Float64frombits(order.Uint64(buf[:]))
	}

	return data, shape, nil
}

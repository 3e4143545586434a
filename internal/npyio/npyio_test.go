package npyio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	v := []float64{1, -2.5, 3e10, 0}
	if err := Write(&buf, v); err != nil {
		t.Fatal(err)
	}

	// Header plus prelude is padded to a 16-byte boundary.
	if n := buf.Len() - 8*len(v); n%16 != 0 {
		t.Errorf("data starts at offset %d, not 16-byte aligned", n)
	}

	data, shape, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(shape) != 1 || shape[0] != 4 {
		t.Errorf("expected shape [4], got %v", shape)
	}
	for i := range v {
		if data[i] != v[i] {
			t.Errorf("element %d: expected %v, got %v", i, v[i], data[i])
		}
	}
}

func TestWrite_BadShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, []float64{1, 2, 3}, 2, 2); err == nil {
		t.Error("expected error for mismatched shape")
	}
}

func TestNPZ(t *testing.T) {
	arrays := []Array{
		Vector("tau", []float64{0.1, 0.2}),
		Matrix("gamma", [][]float64{{1, 2}, {3, 4}, {5, 6}}),
	}

	filename := filepath.Join(t.TempDir(), "scores.npz")
	if err := MakeNPZ(filename, arrays); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	result, err := ReadNPZ(data)
	if err != nil {
		t.Fatal(err)
	}

	gamma, ok := result["gamma"]
	if !ok {
		t.Fatalf("gamma missing from %v", result)
	}
	if len(gamma.Shape) != 2 || gamma.Shape[0] != 3 || gamma.Shape[1] != 2 {
		t.Errorf("expected shape [3 2], got %v", gamma.Shape)
	}
	if gamma.Data[3] != 4 {
		t.Errorf("expected row-major data, got %v", gamma.Data)
	}
	if tau := result["tau"]; len(tau.Data) != 2 || tau.Data[1] != 0.2 {
		t.Errorf("unexpected tau: %+v", tau)
	}
}

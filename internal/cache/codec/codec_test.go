package codec

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/arturkryukov/dapfncache/internal/dapmodel"
)

func buildDataset() *dapmodel.Dataset {
	ds := dapmodel.New("ocean.nc")

	temp := dapmodel.NewFloat64("temperature", 14.5)
	temp.SetSend(true)
	ds.AddVariable(temp)

	depth := dapmodel.NewArray("depth", []float64{0, 10, 20, 30})
	depth.SetSend(true)
	ds.AddVariable(depth)

	station := dapmodel.NewSequence("station", []string{"lon", "lat"})
	_ = station.AppendRow([]float64{1.5, 2.5})
	_ = station.AppendRow([]float64{3.5, 4.5})
	station.SetSend(true)
	ds.AddVariable(station)

	label := dapmodel.NewStr("label", "north atlantic")
	label.SetSend(true)
	ds.AddVariable(label)

	return ds
}

func TestWriteRead_Roundtrip(t *testing.T) {
	ds := buildDataset()
	resourceID := "ocean.nc#temperature,depth,station,label"

	var buf bytes.Buffer
	if err := Write(&buf, resourceID, ds); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf, resourceID)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if got.Name() != ds.Name() {
		t.Errorf("Name() = %q, want %q", got.Name(), ds.Name())
	}

	temp, ok := got.Variable("temperature")
	if !ok {
		t.Fatal("temperature variable missing after roundtrip")
	}
	if v, ok := temp.(*dapmodel.Float64); !ok || v.Value != 14.5 {
		t.Errorf("temperature = %#v, want Float64(14.5)", temp)
	}

	depth, ok := got.Variable("depth")
	if !ok {
		t.Fatal("depth variable missing after roundtrip")
	}
	arr, ok := depth.(*dapmodel.Array)
	if !ok || len(arr.Values) != 4 || arr.Values[2] != 20 {
		t.Errorf("depth = %#v, want [0 10 20 30]", depth)
	}

	station, ok := got.Variable("station")
	if !ok {
		t.Fatal("station variable missing after roundtrip")
	}
	seq, ok := station.(*dapmodel.Sequence)
	if !ok {
		t.Fatalf("station is %T, want *dapmodel.Sequence", station)
	}
	if len(seq.Rows) != 2 {
		t.Fatalf("station has %d rows, want 2", len(seq.Rows))
	}
	if seq.CursorPos() != 0 {
		t.Errorf("station cursor after Read = %d, want 0 (reset for re-serialization)", seq.CursorPos())
	}

	for _, v := range got.Variables() {
		if !v.Send() || !v.Read() {
			t.Errorf("variable %q: Send()=%t Read()=%t, want both true after a cache hit", v.Name(), v.Send(), v.Read())
		}
	}
}

func TestRead_CollisionDetected(t *testing.T) {
	ds := buildDataset()

	var buf bytes.Buffer
	if err := Write(&buf, "ocean.nc#a", ds); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := Read(&buf, "ocean.nc#b")
	if !errors.Is(err, ErrCollision) {
		t.Fatalf("Read with mismatched resource id: got %v, want ErrCollision", err)
	}
}

func TestWrite_OnlySendFlaggedVariablesAreSerialized(t *testing.T) {
	ds := dapmodel.New("d")
	sent := dapmodel.NewFloat64("sent", 1)
	sent.SetSend(true)
	ds.AddVariable(sent)
	ds.AddVariable(dapmodel.NewFloat64("unsent", 2)) // Send defaults to false

	var buf bytes.Buffer
	if err := Write(&buf, "d#sent", ds); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := Read(&buf, "d#sent")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if _, ok := got.Variable("unsent"); ok {
		t.Error("variable not marked to send must not appear in the persisted schema")
	}
	if _, ok := got.Variable("sent"); !ok {
		t.Error("variable marked to send must appear in the persisted schema")
	}
}

func TestPeekWitness(t *testing.T) {
	ds := buildDataset()
	var buf bytes.Buffer
	if err := Write(&buf, "ocean.nc#x", ds); err != nil {
		t.Fatalf("Write: %v", err)
	}

	br := bufio.NewReader(&buf)
	witness, err := PeekWitness(br)
	if err != nil {
		t.Fatalf("PeekWitness: %v", err)
	}
	if witness != "ocean.nc#x" {
		t.Errorf("PeekWitness = %q, want %q", witness, "ocean.nc#x")
	}
}

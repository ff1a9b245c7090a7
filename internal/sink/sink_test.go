package sink

import (
	"bytes"
	"testing"

	"github.com/evolbioinfo/alisim/internal/seqalpha"
)

func dnaTable(t *testing.T) seqalpha.CharTable {
	t.Helper()
	ctx, err := seqalpha.New(seqalpha.DNA, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return seqalpha.DefaultCharTable(ctx)
}

func TestCollectorWriteLeafPreservesOrderAndContent(t *testing.T) {
	c := NewCollector()
	if err := c.WriteLeaf("A", []uint16{0, 1, 2}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := c.WriteLeaf("B", []uint16{3, 3, 3}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	names, leaves := c.Leaves()
	if len(names) != 2 || names[0] != "A" || names[1] != "B" {
		t.Fatalf("expected order [A B], got %v", names)
	}
	if len(leaves["A"]) != 3 || leaves["A"][1] != 1 {
		t.Errorf("unexpected leaf A content: %v", leaves["A"])
	}
}

func TestCollectorSpillAndReadSpillRoundTrips(t *testing.T) {
	c := NewCollector()
	defer c.Close()
	want := []uint16{0, 1, 2, 3, 0}
	if err := c.SpillLeaf("A", want); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := c.SpillLeaf("B", []uint16{1, 1}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	got, err := c.ReadSpill("A")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(got) != len(want) {
		t.Fatalf("expected length %d, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestReadSpillUnknownNameErrors(t *testing.T) {
	c := NewCollector()
	defer c.Close()
	if err := c.SpillLeaf("A", []uint16{0}); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if _, err := c.ReadSpill("nope"); err == nil {
		t.Errorf("expected error for unspilled leaf name")
	}
}

func TestWriteAlignmentPhylip(t *testing.T) {
	table := dnaTable(t)
	names := []string{"Alpha", "B"}
	leaves := map[string][]uint16{
		"Alpha": {0, 1, 2, 3},
		"B":     {3, 2, 1, 0},
	}
	var buf bytes.Buffer
	if err := WriteAlignment(&buf, PHYLIP, table, names, leaves); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := "2 4\nAlpha ACGT\nB     TGCA\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteAlignmentFasta(t *testing.T) {
	table := dnaTable(t)
	names := []string{"A"}
	leaves := map[string][]uint16{"A": {0, 0, 3}}
	var buf bytes.Buffer
	if err := WriteAlignment(&buf, FASTA, table, names, leaves); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := ">A\nAAT\n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestPhylipRoundTrip(t *testing.T) {
	table := dnaTable(t)
	names := []string{"X", "Yy"}
	leaves := map[string][]uint16{
		"X":  {0, 1, 2, 3, 0},
		"Yy": {1, 1, 1, 1, 1},
	}
	var buf bytes.Buffer
	if err := WriteAlignment(&buf, PHYLIP, table, names, leaves); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	gotNames, gotLeaves, err := ReadPhylip(&buf, table)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(gotNames) != 2 {
		t.Fatalf("expected 2 names, got %d", len(gotNames))
	}
	for _, n := range names {
		got := gotLeaves[n]
		want := leaves[n]
		if len(got) != len(want) {
			t.Fatalf("%s: expected length %d, got %d", n, len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("%s position %d: expected %d, got %d", n, i, want[i], got[i])
			}
		}
	}
}

func TestFormatFlagRoundTrip(t *testing.T) {
	var f Format
	if err := f.Set("fasta"); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if f != FASTA {
		t.Errorf("expected FASTA, got %v", f)
	}
	if f.String() != "fasta" {
		t.Errorf("expected round trip string fasta, got %s", f.String())
	}
	if err := f.Set("bogus"); err == nil {
		t.Errorf("expected error for unknown format")
	}
}

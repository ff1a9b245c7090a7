// Package sink collects the leaf sequences a simulation run produces and
// materializes them as a PHYLIP-like or FASTA-like alignment, optionally
// gzip-compressed. It also implements simtree.Sink, spilling sequences to a
// scratch file when streaming mode defers leaf materialization until after
// genome-tree reconciliation.
package sink

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/evolbioinfo/alisim/internal/seqalpha"
)

// Format selects the output alignment layout.
type Format int

const (
	PHYLIP Format = iota
	FASTA
)

var formatNames = map[string]Format{"phylip": PHYLIP, "fasta": FASTA}

// Set implements flag.Value, following the same Format.Set/.String pattern
// the teacher uses for its own enum-valued flags.
func (f *Format) Set(s string) error {
	if v, ok := formatNames[strings.ToLower(s)]; ok {
		*f = v
		return nil
	}
	return fmt.Errorf("%q is not a valid output format", s)
}

func (f Format) String() string {
	for s, v := range formatNames {
		if v == f {
			return s
		}
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// Collector accumulates leaf sequences during a run, in memory or spilled
// to disk, and implements simtree.Sink.
type Collector struct {
	mu     sync.Mutex
	names  []string
	leaves map[string][]uint16

	spillPath   string
	spillFile   *os.File
	spillOffset int64
	spillOff    map[string]int64
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{leaves: map[string][]uint16{}, spillOff: map[string]int64{}}
}

// WriteLeaf records a leaf's final sequence in memory.
func (c *Collector) WriteLeaf(name string, seq []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]uint16, len(seq))
	copy(cp, seq)
	if _, ok := c.leaves[name]; !ok {
		c.names = append(c.names, name)
	}
	c.leaves[name] = cp
	return nil
}

// SpillLeaf appends seq to a scratch file in the "name@len@s0 s1 ... sN"
// format instead of holding it in memory, for later rematerialization via
// ReadSpill once genome-tree reconciliation has run.
func (c *Collector) SpillLeaf(name string, seq []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spillFile == nil {
		f, err := os.CreateTemp("", "alisim-spill-*.tmp")
		if err != nil {
			return fmt.Errorf("sink: creating spill file: %w", err)
		}
		c.spillFile = f
		c.spillPath = f.Name()
	}
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(int(v))
	}
	line := fmt.Sprintf("%s@%d@%s\n", name, len(seq), strings.Join(parts, " "))
	n, err := c.spillFile.WriteString(line)
	if err != nil {
		return fmt.Errorf("sink: spilling leaf %q: %w", name, err)
	}
	c.spillOff[name] = c.spillOffset
	c.spillOffset += int64(n)
	return nil
}

// ReadSpill reads back a sequence previously written by SpillLeaf. It opens
// its own file handle so concurrent callers (the errgroup-driven
// reconciliation fan-out) never share a seek position.
func (c *Collector) ReadSpill(name string) ([]uint16, error) {
	c.mu.Lock()
	off, ok := c.spillOff[name]
	path := c.spillPath
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("sink: no spilled sequence for leaf %q", name)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sink: reopening spill file: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return nil, fmt.Errorf("sink: seeking spill for %q: %w", name, err)
	}
	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("sink: reading spill for %q: %w", name, err)
	}

	parts := strings.SplitN(strings.TrimRight(line, "\n"), "@", 3)
	if len(parts) != 3 || parts[0] != name {
		return nil, fmt.Errorf("sink: corrupt spill record for %q", name)
	}
	length, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, fmt.Errorf("sink: corrupt spill length for %q: %w", name, err)
	}
	fields := strings.Fields(parts[2])
	if len(fields) != length {
		return nil, fmt.Errorf("sink: spill length mismatch for %q: header says %d, got %d fields", name, length, len(fields))
	}
	seq := make([]uint16, length)
	for i, tok := range fields {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("sink: corrupt spill value for %q: %w", name, err)
		}
		seq[i] = uint16(v)
	}
	return seq, nil
}

// Leaves returns the names (in first-write order) and sequences recorded so
// far via WriteLeaf. It does not include anything only ever spilled.
func (c *Collector) Leaves() ([]string, map[string][]uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, len(c.names))
	copy(names, c.names)
	leaves := make(map[string][]uint16, len(c.leaves))
	for k, v := range c.leaves {
		cp := make([]uint16, len(v))
		copy(cp, v)
		leaves[k] = cp
	}
	return names, leaves
}

// Close removes the scratch spill file, if one was created.
func (c *Collector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spillFile == nil {
		return nil
	}
	path := c.spillPath
	if err := c.spillFile.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// OpenOutput opens path for writing, wrapping it in a gzip writer when
// compress is true. The returned closer flushes and closes both layers.
func OpenOutput(path string, compress bool) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("sink: creating %s: %w", path, err)
	}
	if !compress {
		return f, nil
	}
	return &gzipCloser{gz: gzip.NewWriter(f), f: f}, nil
}

type gzipCloser struct {
	gz *gzip.Writer
	f  *os.File
}

func (g *gzipCloser) Write(p []byte) (int, error) { return g.gz.Write(p) }

func (g *gzipCloser) Close() error {
	if err := g.gz.Close(); err != nil {
		g.f.Close()
		return err
	}
	return g.f.Close()
}

// WriteAlignment writes names (in the given order) with their
// character-materialized sequences to w, in the requested format, using
// table to convert state codes to printable characters.
func WriteAlignment(w io.Writer, format Format, table seqalpha.CharTable, names []string, leaves map[string][]uint16) error {
	switch format {
	case PHYLIP:
		return writePhylip(w, table, names, leaves)
	case FASTA:
		return writeFasta(w, table, names, leaves)
	default:
		return fmt.Errorf("sink: unknown output format %v", format)
	}
}

func writePhylip(w io.Writer, table seqalpha.CharTable, names []string, leaves map[string][]uint16) (err error) {
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); err == nil {
			err = ferr
		}
	}()

	maxName := 0
	length := 0
	for _, n := range names {
		if len(n) > maxName {
			maxName = len(n)
		}
		if l := len(leaves[n]); l > length {
			length = l
		}
	}
	if _, err = fmt.Fprintf(bw, "%d %d\n", len(names), length); err != nil {
		return err
	}
	for _, n := range names {
		if _, err = fmt.Fprintf(bw, "%-*s ", maxName, n); err != nil {
			return err
		}
		if err = writeChars(bw, table, leaves[n]); err != nil {
			return err
		}
		if _, err = bw.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeFasta(w io.Writer, table seqalpha.CharTable, names []string, leaves map[string][]uint16) (err error) {
	bw := bufio.NewWriter(w)
	defer func() {
		if ferr := bw.Flush(); err == nil {
			err = ferr
		}
	}()
	for _, n := range names {
		if _, err = fmt.Fprintf(bw, ">%s\n", n); err != nil {
			return err
		}
		if err = writeChars(bw, table, leaves[n]); err != nil {
			return err
		}
		if _, err = bw.WriteString("\n"); err != nil {
			return err
		}
	}
	return nil
}

func writeChars(w io.Writer, table seqalpha.CharTable, seq []uint16) error {
	buf := make([]byte, 0, len(seq))
	for _, s := range seq {
		buf = append(buf, []byte(string(table.StateToChar(s)))...)
	}
	_, err := w.Write(buf)
	return err
}

// ReadPhylip parses a file written by writePhylip back into a name->sequence
// map, confirming the round-trip OutputSink must preserve.
func ReadPhylip(r io.Reader, table seqalpha.CharTable) ([]string, map[string][]uint16, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("sink: empty phylip input")
	}
	header := strings.Fields(scanner.Text())
	if len(header) != 2 {
		return nil, nil, fmt.Errorf("sink: malformed phylip header %q", scanner.Text())
	}
	numLeaves, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, nil, fmt.Errorf("sink: malformed phylip leaf count: %w", err)
	}

	names := make([]string, 0, numLeaves)
	leaves := make(map[string][]uint16, numLeaves)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 2)
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("sink: malformed phylip row %q", line)
		}
		name := fields[0]
		seqStr := strings.TrimLeft(fields[1], " ")
		seq := make([]uint16, 0, len(seqStr))
		for _, r := range seqStr {
			s, ok := table.CharToState(r)
			if !ok {
				return nil, nil, fmt.Errorf("sink: unrecognized character %q for leaf %q", r, name)
			}
			seq = append(seq, s)
		}
		names = append(names, name)
		leaves[name] = seq
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return names, leaves, nil
}


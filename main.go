/*
alisim simulates multiple sequence alignments along a fixed phylogeny under
a substitution model, indel process, rate heterogeneity profile, partial
FunDi taxon swap, and ascertainment-bias correction, and writes the result
as a PHYLIP or FASTA alignment plus (when ascertainment correction ran) a
retained-site-fraction diagnostic plot.

usage: alisim [flags]... <tree_file>

positional arguments:

	<tree_file>	newick tree the sequences are simulated along

flags:

	-alphabet kind
	  	sequence alphabet [bin|dna|aa|nt2aa|codon|morph] (default "dna")
	-ancestral path
	  	PHYLIP file holding a fixed ancestral sequence at the root
	-del_dist spec
	  	deletion length distribution spec (default "GEO:0.3")
	-del_ratio float
	  	deletion rate relative to substitution rate
	-format kind
	  	output alignment format [phylip|fasta] (default "phylip")
	-freqs list
	  	comma-separated base/state frequencies (default: equal)
	-fundi_p float
	  	proportion of sites eligible for the FunDi taxon-set swap
	-fundi_taxa list
	  	comma-separated taxa the FunDi swap applies to
	-gzip
	  	gzip-compress the written alignment(s)
	-ins_dist spec
	  	insertion length distribution spec (default "GEO:0.3")
	-ins_ratio float
	  	insertion rate relative to substitution rate
	-length int
	  	sequence length (required unless -ancestral is given)
	-model spec
	  	substitution model spec (default "JC69")
	-morph_states int
	  	number of states for a morph alphabet
	-n int
	  	number of replicate datasets to simulate (default 1)
	-o string
	  	output prefix
	-partition path
	  	partition file ("start end weight [model_spec]" per line)
	-rate_het spec
	  	rate heterogeneity spec (default "NONE")
	-position_retry_bound int
	  	indel gap-aware position selection retry bound (default 1000)
	-scale float
	  	branch length scale factor (default 1)
	-seed int
	  	RNG seed (default 1)
	-thresh float
	  	simulation threshold override
	-h	prints short help and exits
	-v	prints version number and exits
	-write_internal
	  	also write ancestral sequences at internal nodes

examples:

	alisim -length 500 -model HKY:2.5 -o sim constraint.nwk
*/
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/evolbioinfo/gotree/io/newick"
	"github.com/evolbioinfo/gotree/tree"

	"github.com/evolbioinfo/alisim/internal/seqalpha"
	"github.com/evolbioinfo/alisim/internal/simctx"
	"github.com/evolbioinfo/alisim/internal/sink"
)

const (
	Version      = "v1.0.0"
	ErrorMessage = "alisim encountered an error ::"
	TimeFormat   = "2006-01-02_15-04-05"
)

type Args struct {
	treeFile string
	cfg      simctx.Config
}

func Usage() {
	fmt.Fprint(flag.CommandLine.Output(), // nolint
		"usage: alisim [flags]... <tree_file>\n",
		"\n",
		"positional arguments:\n\n",
		"  <tree_file>\tnewick tree the sequences are simulated along\n",
		"\n",
		"flags:\n\n",
	)
	flag.PrintDefaults()
	fmt.Fprint(flag.CommandLine.Output(), // nolint
		"\n",
		"examples:\n\n",
		"\talisim -length 500 -model HKY:2.5 -o sim constraint.nwk\n\n",
	)
}

func parseArgs() Args {
	flag.Usage = Usage

	alphabet := seqalpha.DNA
	flag.Var(&alphabet, "alphabet", "sequence `kind` [bin|dna|aa|nt2aa|codon|morph]")
	format := sink.PHYLIP
	flag.Var(&format, "format", "output alignment `kind` [phylip|fasta]")

	ancestral := flag.String("ancestral", "", "PHYLIP `path` holding a fixed ancestral sequence at the root")
	delDist := flag.String("del_dist", "GEO:0.3", "deletion length distribution `spec`")
	delRatio := flag.Float64("del_ratio", 0, "deletion rate relative to substitution rate")
	freqsStr := flag.String("freqs", "", "comma-separated `list` of base/state frequencies")
	fundiP := flag.Float64("fundi_p", 0, "proportion of sites eligible for the FunDi taxon-set swap")
	fundiTaxa := flag.String("fundi_taxa", "", "comma-separated `list` of taxa the FunDi swap applies to")
	gzipOut := flag.Bool("gzip", false, "gzip-compress the written alignment(s)")
	insDist := flag.String("ins_dist", "GEO:0.3", "insertion length distribution `spec`")
	insRatio := flag.Float64("ins_ratio", 0, "insertion rate relative to substitution rate")
	length := flag.Int("length", 0, "sequence length (required unless -ancestral is given)")
	model := flag.String("model", "JC69", "substitution model `spec`")
	morphStates := flag.Int("morph_states", 0, "number of states for a morph alphabet")
	numDatasets := flag.Int("n", 1, "number of replicate datasets to simulate")
	prefix := flag.String("o", "", "output prefix")
	partitionFile := flag.String("partition", "", "partition `path` (\"start end weight [model_spec]\" per line)")
	rateHet := flag.String("rate_het", "NONE", "rate heterogeneity `spec`")
	positionRetryBound := flag.Int("position_retry_bound", 0, "indel gap-aware position selection retry bound (default 1000)")
	scale := flag.Float64("scale", 1, "branch length scale factor")
	seed := flag.Int64("seed", 1, "RNG seed")
	thresh := flag.Float64("thresh", -1, "simulation threshold override")
	writeInternal := flag.Bool("write_internal", false, "also write ancestral sequences at internal nodes")
	help := flag.Bool("h", false, "prints short help and exits")
	ver := flag.Bool("v", false, "prints version number and exits")
	flag.Parse()

	if *help {
		Usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Printf("alisim %s\n", Version)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		parserError("one positional argument required: <tree_file>")
	}

	tre, err := readTreeFile(flag.Arg(0))
	if err != nil {
		parserError(err.Error())
	}

	alpha, err := seqalpha.New(alphabet, *morphStates)
	if err != nil {
		parserError(err.Error())
	}
	table := seqalpha.DefaultCharTable(alpha)

	var ancestralSeq []uint16
	if *ancestral != "" {
		ancestralSeq, err = readAncestralFile(*ancestral, table)
		if err != nil {
			parserError(err.Error())
		}
	}

	var freqs []float64
	if *freqsStr != "" {
		freqs, err = parseFloatList(*freqsStr)
		if err != nil {
			parserError(fmt.Sprintf("parsing -freqs: %s", err))
		}
	}

	var fundiTaxonSet []string
	if *fundiTaxa != "" {
		fundiTaxonSet = strings.Split(*fundiTaxa, ",")
	}

	var threshPtr *float64
	if *thresh >= 0 {
		threshPtr = thresh
	}

	var partitions []simctx.Partition
	if *partitionFile != "" {
		partitions, err = readPartitionFile(*partitionFile)
		if err != nil {
			parserError(err.Error())
		}
	}

	cfg := simctx.Config{
		Tree:                   tre,
		SequenceLength:         *length,
		NumDatasets:            *numDatasets,
		Alphabet:               alphabet,
		MorphStates:            *morphStates,
		ModelSpec:              *model,
		Freqs:                  freqs,
		BranchScale:            *scale,
		RateHetSpec:            *rateHet,
		InsertionRatio:         *insRatio,
		DeletionRatio:          *delRatio,
		InsertionDistSpec:      *insDist,
		DeletionDistSpec:       *delDist,
		FundiProportion:        *fundiP,
		FundiTaxonSet:          fundiTaxonSet,
		OutputFormat:           format,
		Compression:            *gzipOut,
		OutputPrefix:           *prefix,
		SimulationThresh:       threshPtr,
		PositionRetryBound:     *positionRetryBound,
		Partitions:             partitions,
		AncestralSequence:      ancestralSeq,
		WriteInternalSequences: *writeInternal,
		Seed:                   *seed,
	}
	return Args{treeFile: flag.Arg(0), cfg: cfg}
}

// prints message, usage, and exits (status code 1)
func parserError(message string) {
	fmt.Fprintln(os.Stderr, message+"\n")
	Usage()
	os.Exit(1)
}

// readTreeFile reads and parses a single newick tree, the way
// prep.readTreeFile validates camus's own constraint tree input.
func readTreeFile(path string) (*tree.Tree, error) {
	treBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tree file: %w", err)
	}
	treBytes = bytes.TrimSpace(treBytes)
	if len(treBytes) == 0 {
		return nil, fmt.Errorf("tree file %s is empty", path)
	}
	tr, err := newick.NewParser(bytes.NewReader(treBytes)).Parse()
	if err != nil {
		return nil, fmt.Errorf("error parsing tree newick string from %s: %s", path, err.Error())
	}
	if err := tr.UpdateTipIndex(); err != nil {
		return nil, fmt.Errorf("error updating tip index for %s: %s", path, err.Error())
	}
	return tr, nil
}

// readAncestralFile reads a one-sequence PHYLIP file holding a fixed root
// sequence, reusing the alignment reader ConstantSiteFilter's output
// would otherwise be read back with.
func readAncestralFile(path string, table seqalpha.CharTable) ([]uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening ancestral sequence file %s: %w", path, err)
	}
	defer f.Close()
	names, leaves, err := sink.ReadPhylip(f, table)
	if err != nil {
		return nil, fmt.Errorf("error parsing ancestral sequence file %s: %w", path, err)
	}
	if len(names) != 1 {
		return nil, fmt.Errorf("ancestral sequence file %s must contain exactly one sequence, found %d", path, len(names))
	}
	return leaves[names[0]], nil
}

// readPartitionFile reads "start end weight [model_spec]" lines, one
// partition per line with an optional fourth model_spec field, the way
// readGeneTreesFile scans its input file line by line.
func readPartitionFile(path string) ([]simctx.Partition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading partition file %s: %w", path, err)
	}
	var parts []simctx.Partition
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("partition file %s line %d: expected \"start end weight [model_spec]\"", path, i+1)
		}
		start, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("partition file %s line %d: %w", path, i+1, err)
		}
		end, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("partition file %s line %d: %w", path, i+1, err)
		}
		weight, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("partition file %s line %d: %w", path, i+1, err)
		}
		p := simctx.Partition{Start: start, End: end, Weight: weight}
		if len(fields) == 4 {
			p.ModelSpec = fields[3]
		}
		parts = append(parts, p)
	}
	return parts, nil
}

func defaultPrefix(treeFile string) string {
	parts := strings.Split(treeFile, string(os.PathSeparator))
	name := parts[len(parts)-1]
	if dot := strings.LastIndex(name, "."); dot > 0 {
		name = name[:dot]
	}
	return fmt.Sprintf("alisim_%s_%s", name, time.Now().Local().Format(TimeFormat))
}

func parseFloatList(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func main() {
	var exit int
	defer func() {
		os.Exit(exit)
	}()
	buf := &bytes.Buffer{} // capture pre logfile setup logging
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(io.MultiWriter(os.Stderr, buf))
	args := parseArgs()
	if args.cfg.OutputPrefix == "" {
		args.cfg.OutputPrefix = defaultPrefix(args.treeFile)
		log.Printf("output prefix was not set, using %q", args.cfg.OutputPrefix)
	}
	if logf, err := os.Create(args.cfg.OutputPrefix + ".log"); err == nil {
		logf.Write(buf.Bytes()) // nolint
		log.SetOutput(io.MultiWriter(os.Stderr, logf))
		defer func() {
			log.SetOutput(os.Stderr)
			_ = logf.Close()
		}()
	} else {
		log.Printf("failed to create log file %s.log, %s", args.cfg.OutputPrefix, err)
	}
	log.Printf("alisim %s", Version)
	log.Printf("invoked as: alisim %s", strings.Join(os.Args[1:], " "))
	if err := run(args); err != nil {
		log.Printf("%s %s", ErrorMessage, err)
		exit = 1
	}
}

func run(args Args) error {
	ctx, err := simctx.New(args.cfg)
	if err != nil {
		return err
	}
	reps, err := ctx.Run(context.Background())
	if err != nil {
		return err
	}
	if err := ctx.WriteOutputs(reps); err != nil {
		return err
	}
	for i, rep := range reps {
		log.Printf("dataset %d: %d leaves, retained fraction %.3f", i, len(rep.Names), rep.RetainedFraction)
	}
	return nil
}

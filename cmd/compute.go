// Copyright © 2017 Will Rowe <will.rowe@stfc.ac.uk>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/misc"
	"github.com/will-rowe/decoct/src/pipeline"
	"github.com/will-rowe/decoct/src/version"
)

// the command line arguments
var (
	ksizes         *[]uint // k-mer sizes to sketch
	numHashes      *uint   // number of hashes for bottom-k sketches
	scaled         *uint64 // scaled value, overrides num-hashes
	protein        *bool   // sketch translated protein
	dayhoff        *bool   // sketch dayhoff encoded protein
	hp             *bool   // sketch hydrophobic-polar encoded protein
	noDNA          *bool   // don't sketch DNA
	inputIsProtein *bool   // the input is already protein
	trackAbundance *bool   // keep k-mer counts
	seed           *uint64 // hash seed
	hashFunction   *string // murmur64 or nthash
	canonicalOrder *string // order of normalisation and canonicalisation
	checkSequence  *bool   // reject malformed sequences
	qualTrim       *int    // minimum base quality for FASTQ trimming
	merge          *string // merge everything into one named signature
	singleton      *bool   // one signature per record
	nameFromFirst  *bool   // name signatures after the first record
	inputIs10x     *bool   // barcoded input
	computeOutput  *string // single output file
	computeOutDir  *string // directory for the per-file outputs
	license        *string // signature license
)

// the compute command (used by cobra)
var computeCmd = &cobra.Command{
	Use:   "compute [flags] FILES...",
	Short: "Compute MinHash signatures for sequence files",
	Long: `Compute MinHash signatures for sequence files.

 Input can be FASTA, FASTQ or BAM (plain, gzip, bzip2 or zstd compressed), use - to read from STDIN.
 By default each file gets one signature, saved to FILE.sig.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCompute(args)
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	ksizes = computeCmd.Flags().UintSliceP("ksizes", "k", []uint{21, 31, 51}, "comma separated list of k-mer sizes")
	numHashes = computeCmd.Flags().UintP("num-hashes", "n", 500, "number of hashes to keep in each sketch (bottom-k)")
	scaled = computeCmd.Flags().Uint64("scaled", 0, "keep hashes below 2^64/scaled instead of a fixed number")
	protein = computeCmd.Flags().Bool("protein", false, "compute protein signatures (six frame translation of DNA input)")
	dayhoff = computeCmd.Flags().Bool("dayhoff", false, "compute Dayhoff encoded protein signatures")
	hp = computeCmd.Flags().Bool("hp", false, "compute hydrophobic-polar encoded protein signatures")
	noDNA = computeCmd.Flags().Bool("no-dna", false, "don't compute DNA signatures")
	inputIsProtein = computeCmd.Flags().Bool("input-is-protein", false, "input sequences are protein (turns off DNA signatures)")
	trackAbundance = computeCmd.Flags().Bool("track-abundance", false, "track the k-mer abundances")
	seed = computeCmd.Flags().Uint64("seed", minhash.DefaultSeed, "seed for the hash function")
	hashFunction = computeCmd.Flags().String("hash-function", "murmur64", "hash function (murmur64 or nthash)")
	canonicalOrder = computeCmd.Flags().String("canonical-order", "normalise-first", "replace invalid bases before (normalise-first) or after (canonicalise-first) choosing the canonical k-mer")
	checkSequence = computeCmd.Flags().Bool("check-sequence", false, "fail a file that has a sequence with invalid bases")
	qualTrim = computeCmd.Flags().Int("qual-trim", 0, "minimum base quality used to trim FASTQ reads (0 = no trimming)")
	merge = computeCmd.Flags().String("merge", "", "merge all input into a single signature with this name")
	singleton = computeCmd.Flags().Bool("singleton", false, "compute a signature for each sequence record")
	nameFromFirst = computeCmd.Flags().Bool("name-from-first", false, "name each signature after the first record in its file")
	inputIs10x = computeCmd.Flags().Bool("input-is-10x", false, "input is barcoded (10x) BAM")
	computeOutput = computeCmd.Flags().StringP("output", "o", "", "save all signatures to this file")
	computeOutDir = computeCmd.Flags().String("outdir", "", "directory to save the per-file signatures to")
	license = computeCmd.Flags().String("license", "CC0", "signature license")
	RootCmd.AddCommand(computeCmd)
}

// computeParamCheck collects the compute parameters
func computeParamCheck(args []string) (*pipeline.Info, error) {
	for _, file := range args {
		if file == "-" {
			if err := misc.CheckSTDIN(); err != nil {
				return nil, err
			}
			continue
		}
		if err := misc.CheckFile(file); err != nil {
			return nil, err
		}
	}
	if *computeOutDir != "" {
		if err := os.MkdirAll(*computeOutDir, 0755); err != nil {
			return nil, err
		}
	}
	hf, err := minhash.ParseHashFunction(*hashFunction)
	if err != nil {
		return nil, err
	}
	order, err := minhash.ParseCanonicalOrder(*canonicalOrder)
	if err != nil {
		return nil, err
	}
	setProcessors()
	info := pipeline.NewInfo(version.GetVersion())
	info.NumProc = *proc
	info.Profiling = *profiling
	c := &info.Compute
	c.KSizes = make([]uint32, len(*ksizes))
	for i, k := range *ksizes {
		c.KSizes[i] = uint32(k)
	}
	c.NumHashes = uint32(*numHashes)
	c.Scaled = *scaled
	c.Seed = *seed
	c.DNA = !*noDNA
	c.Protein = *protein
	c.Dayhoff = *dayhoff
	c.HP = *hp
	c.InputIsProtein = *inputIsProtein
	c.TrackAbundance = *trackAbundance
	c.HashFunction = hf
	c.CanonicalOrder = order
	c.CheckSequence = *checkSequence
	c.QualTrim = *qualTrim
	c.Merge = *merge
	c.Singleton = *singleton
	c.NameFromFirst = *nameFromFirst
	c.InputIs10x = *inputIs10x
	c.Output = *computeOutput
	c.OutDir = *computeOutDir
	c.License = *license
	return info, info.Validate()
}

/*
  The main function for the compute command
*/
func runCompute(args []string) {
	if *profiling {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
	defer startLogging("compute")()
	startTime := time.Now()
	log.Printf("checking parameters...")
	info, err := computeParamCheck(args)
	exitCheck(err)
	log.Printf("\tprocessors: %d", info.NumProc)
	log.Printf("\tinput files: %d", len(args))
	log.Printf("\tsketches: %v", &info.Compute)
	log.Printf("\thash function: %v", info.Compute.HashFunction)
	switch {
	case info.Compute.Merge != "":
		log.Printf("\tmerging into: %s", info.Compute.Merge)
	case info.Compute.Singleton:
		log.Printf("\tone signature per record")
	}

	// a progress bar over the input files, drawn unless the log is going to stderr
	var pbs *mpb.Progress
	var bar *mpb.Bar
	if !*quiet && *logFile != "" {
		pbs = mpb.New(mpb.WithWidth(40), mpb.WithOutput(os.Stderr))
		bar = pbs.AddBar(int64(len(args)),
			mpb.PrependDecorators(
				decor.Name("sketched files: ", decor.WC{W: len("sketched files: "), C: decor.DindentRight}),
				decor.CountersNoUnit("%d / %d", decor.WCSyncWidth),
			),
			mpb.AppendDecorators(
				decor.Name("ETA: ", decor.WC{W: len("ETA: ")}),
				decor.EwmaETA(decor.ET_STYLE_GO, 10),
				decor.OnComplete(decor.Name(""), ". done"),
			),
		)
		info.OnFileDone = func(file string, elapsed time.Duration) {
			bar.EwmaIncrBy(1, elapsed)
		}
	}

	// stop cleanly on ctrl-c, partial signatures are thrown away
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Printf("computing signatures...")
	sigs, err := pipeline.Compute(ctx, info, args)
	if pbs != nil {
		if !bar.Completed() {
			bar.Abort(false)
		}
		pbs.Wait()
	}
	exitCheck(err)
	log.Printf("\tcomputed %d signature(s)", len(sigs))
	if info.Profiling {
		log.Printf("\tmemory: %s", misc.PrintMemUsage())
	}
	log.Printf("finished in %s", time.Since(startTime))
}

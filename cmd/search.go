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
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/misc"
	"github.com/will-rowe/decoct/src/reporting"
	"github.com/will-rowe/decoct/src/search"
)

// the command line arguments
var (
	searchKSize       *uint    // k-mer size of the query sketch
	searchMolecule    *string  // molecule of the query sketch
	threshold         *float64 // minimum score
	containment       *bool    // score by containment of the query
	bestOnly          *bool    // report the single best match
	numResults        *int     // number of matches to report
	searchOutput      *string  // CSV output
	saveMatches       *string  // signature file for the matches
	plotFile          *string  // bar chart of the matches
	traverseDirectory *bool    // search the signature files in directories
	abundance         *bool    // angular similarity on abundances
)

// the search command (used by cobra)
var searchCmd = &cobra.Command{
	Use:   "search [flags] QUERY DBS...",
	Short: "Search a signature against trees and signature files",
	Long: `Search a signature against trees and signature files.

 QUERY is a signature file, the first signature with a sketch for the k-mer size and molecule is used.
 DBS can be trees (.sbt.json), bundled trees (.tar.gz, .zip etc.), signature files or directories of them.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		runSearch(args[0], args[1:])
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	searchKSize = searchCmd.Flags().UintP("ksize", "k", 0, "k-mer size of the query sketch (default is the first sketch)")
	searchMolecule = searchCmd.Flags().String("molecule", "", "molecule of the query sketch (DNA, protein, dayhoff or hp)")
	threshold = searchCmd.Flags().Float64("threshold", search.DefaultThreshold, "minimum similarity (or containment) for a match")
	containment = searchCmd.Flags().Bool("containment", false, "score matches by how much of the query they contain")
	bestOnly = searchCmd.Flags().Bool("best-only", false, "report only the best match")
	numResults = searchCmd.Flags().IntP("num-results", "n", 3, "number of matches to report (0 = all)")
	searchOutput = searchCmd.Flags().StringP("output", "o", "", "write the matches to a CSV file")
	saveMatches = searchCmd.Flags().String("save-matches", "", "save the matched signatures to this file")
	plotFile = searchCmd.Flags().String("plot", "", "save a bar chart of the matches to this file (e.g. matches.png)")
	traverseDirectory = searchCmd.Flags().Bool("traverse-directory", false, "search the signature files held in any directories")
	abundance = searchCmd.Flags().Bool("abundance", false, "score similarity with k-mer abundances (angular similarity) where both sketches track them")
	RootCmd.AddCommand(searchCmd)
}

// searchParamCheck collects the search options
func searchParamCheck(query string, dbs []string) (*search.Options, error) {
	for _, file := range append([]string{query}, dbs...) {
		if err := misc.CheckFile(file); err != nil {
			return nil, err
		}
	}
	setProcessors()
	opts := search.NewOptions()
	opts.KSize = uint32(*searchKSize)
	if *searchMolecule != "" {
		molecule, err := minhash.ParseMolecule(*searchMolecule)
		if err != nil {
			return nil, err
		}
		opts.Molecule = &molecule
	}
	opts.Threshold = *threshold
	opts.Containment = *containment
	opts.BestOnly = *bestOnly
	opts.Abundance = *abundance
	opts.NumResults = *numResults
	opts.TraverseDirectory = *traverseDirectory
	opts.NumProc = *proc
	return opts, opts.Validate()
}

/*
  The main function for the search command
*/
func runSearch(query string, dbs []string) {
	if *profiling {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
	defer startLogging("search")()
	startTime := time.Now()
	log.Printf("checking parameters...")
	opts, err := searchParamCheck(query, dbs)
	exitCheck(err)
	log.Printf("\tprocessors: %d", opts.NumProc)
	log.Printf("\tpredicate: %v", opts.Predicate())
	if !opts.BestOnly {
		log.Printf("\tthreshold: %v", opts.Threshold)
	}

	log.Printf("loading the query and databases...")
	querySig, queryMH, err := search.LoadQuery(query, opts)
	misc.ErrorCheck(err)
	log.Printf("\tquery: %s (k=%d, %v, %d hashes)", querySig.DisplayName(), queryMH.KSize(), queryMH.Molecule(), queryMH.Size())
	if opts.WorkDir == "" {
		workDir, err := os.MkdirTemp("", "decoct-search-")
		misc.ErrorCheck(err)
		defer os.RemoveAll(workDir)
		opts.WorkDir = workDir
	}
	indices, err := search.LoadIndices(dbs, opts)
	misc.ErrorCheck(err)
	for _, idx := range indices {
		log.Printf("\t%s: %d signatures", idx.Location(), idx.Len())
	}

	log.Printf("searching...")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	matches, err := search.Search(ctx, opts.NewSearcher(), queryMH, indices, opts.NumProc)
	misc.ErrorCheck(err)
	misc.ErrorCheck(reporting.Report(os.Stdout, matches, opts.NumResults, opts.BestOnly))
	if *searchOutput != "" {
		misc.ErrorCheck(reporting.WriteCSVFile(*searchOutput, matches))
		log.Printf("\twrote matches to %s", *searchOutput)
	}
	if *saveMatches != "" {
		misc.ErrorCheck(reporting.SaveMatches(*saveMatches, matches))
		log.Printf("\tsaved %d matched signatures to %s", len(matches), *saveMatches)
	}
	if *plotFile != "" && len(matches) != 0 {
		label := "similarity"
		if opts.Containment {
			label = "containment"
		}
		misc.ErrorCheck(reporting.Plot(*plotFile, matches, opts.NumResults, label))
		log.Printf("\tplotted matches to %s", *plotFile)
	}
	log.Printf("finished in %s", time.Since(startTime))
}

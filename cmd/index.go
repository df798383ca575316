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
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/misc"
	"github.com/will-rowe/decoct/src/sbt"
	"github.com/will-rowe/decoct/src/signature"
)

// the command line arguments
var (
	indexOutput   *string // name of the tree
	indexKSize    *uint   // k-mer size of the tree
	indexMolecule *string // molecule of the tree
	bfSize        *uint   // bits per node filter
	nHashes       *uint   // hash functions per node filter
)

// the index command (used by cobra)
var indexCmd = &cobra.Command{
	Use:   "index -o NAME [flags] SIGS...",
	Short: "Build a Sequence Bloom Tree from a set of signatures",
	Long: `Build a Sequence Bloom Tree from a set of signatures.

 SIGS can be signature files or directories of them. The tree is saved as NAME.sbt.json,
 with the node data stored in .sbt.NAME alongside it.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runIndex(args)
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if *indexOutput == "" {
			return fmt.Errorf("an output name for the tree is needed (-o)")
		}
		return misc.CheckRequiredFlags(cmd.Flags())
	},
}

// a function to initialise the command line arguments
func init() {
	indexOutput = indexCmd.Flags().StringP("output", "o", "", "name of the tree (saved as NAME.sbt.json)")
	indexKSize = indexCmd.Flags().UintP("ksize", "k", 0, "k-mer size of the tree (default is the k-mer size of the first signature)")
	indexMolecule = indexCmd.Flags().String("molecule", "DNA", "molecule of the tree (DNA, protein, dayhoff or hp)")
	bfSize = indexCmd.Flags().Uint("bf-size", sbt.DefaultBloomSize, "number of bits in each node filter")
	nHashes = indexCmd.Flags().Uint("n-hashes", sbt.DefaultNumHashes, "number of hash functions used by each node filter")
	RootCmd.AddCommand(indexCmd)
}

// collectSigFiles expands any directories in the arguments to the signature files they hold
func collectSigFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		if info, err := os.Stat(arg); err == nil && info.IsDir() {
			dirFiles, err := misc.CollectFiles(arg, []string{"sig"})
			if err != nil {
				return nil, err
			}
			files = append(files, dirFiles...)
			continue
		}
		if err := misc.CheckFile(arg); err != nil {
			return nil, err
		}
		files = append(files, arg)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no signature files found")
	}
	return files, nil
}

/*
  The main function for the index command
*/
func runIndex(args []string) {
	defer startLogging("index")()
	startTime := time.Now()
	log.Printf("checking parameters...")
	files, err := collectSigFiles(args)
	misc.ErrorCheck(err)
	molecule, err := minhash.ParseMolecule(*indexMolecule)
	misc.ErrorCheck(err)
	log.Printf("\tsignature files: %d", len(files))
	log.Printf("\tmolecule: %v", molecule)
	log.Printf("\tnode filters: %d bits, %d hash functions", *bfSize, *nHashes)

	log.Printf("building the tree...")
	var tree *sbt.SBT
	skipped := 0
	for _, file := range files {
		sigs, err := signature.LoadFile(file)
		misc.ErrorCheck(err)
		for _, sig := range sigs {
			if tree == nil {
				ksize := uint32(*indexKSize)
				if ksize == 0 {
					mh, err := sig.Select(0, &molecule)
					if err != nil {
						log.Printf("\tskipping %s: %v", sig.DisplayName(), err)
						skipped++
						continue
					}
					ksize = mh.KSize()
				}
				log.Printf("\tk-mer size: %d", ksize)
				tree = sbt.New(ksize, molecule, *bfSize, *nHashes)
			}
			if err := tree.Insert(sig); err != nil {
				if !errors.Is(err, minhash.ErrIncompatibleSketch) {
					misc.ErrorCheck(err)
				}
				log.Printf("\tskipping %s: %v", sig.DisplayName(), err)
				skipped++
			}
		}
	}
	if tree == nil || tree.Len() == 0 {
		misc.ErrorCheck(fmt.Errorf("no signatures could be added to the tree"))
	}
	log.Printf("\tsignatures added: %d", tree.Len())
	if skipped != 0 {
		log.Printf("\tsignatures skipped: %d", skipped)
	}
	log.Printf("\ttree nodes: %d (depth %d)", tree.NumNodes(), tree.Depth())
	misc.ErrorCheck(tree.Save(*indexOutput))
	log.Printf("saved tree to %s", tree.Location())
	log.Printf("finished in %s", time.Since(startTime))
}

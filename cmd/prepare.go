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
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/will-rowe/decoct/src/misc"
	"github.com/will-rowe/decoct/src/sbt"
)

// the command line arguments
var (
	archiveFile *string // bundle the prepared tree
	scaffoldOut *string // name of the scaffolded tree
)

// the prepare command (used by cobra)
var prepareCmd = &cobra.Command{
	Use:   "prepare [flags] SBT",
	Short: "Rebuild the internal nodes of a tree and optionally bundle it",
	Long: `Rebuild the internal nodes of a tree from its leaves and save it again.

 With --archive the manifest and node data are bundled into a single file (.tar.gz, .zip etc.) that can be searched directly.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPrepare(args[0])
	},
}

// the scaffold command (used by cobra)
var scaffoldCmd = &cobra.Command{
	Use:   "scaffold -o NAME SBT",
	Short: "Build a new tree from the leaves of an existing one",
	Long:  `Build a new tree from the leaves of an existing one, inserting them in leaf order, and save it as NAME.sbt.json`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runScaffold(args[0])
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if *scaffoldOut == "" {
			return fmt.Errorf("an output name for the tree is needed (-o)")
		}
		return nil
	},
}

// a function to initialise the command line arguments
func init() {
	archiveFile = prepareCmd.Flags().String("archive", "", "bundle the prepared tree into this file (e.g. db.tar.gz)")
	scaffoldOut = scaffoldCmd.Flags().StringP("output", "o", "", "name of the new tree")
	RootCmd.AddCommand(prepareCmd)
	RootCmd.AddCommand(scaffoldCmd)
}

// loadTree checks and loads a tree manifest
func loadTree(path string) *sbt.SBT {
	misc.ErrorCheck(misc.CheckFile(path))
	tree, err := sbt.Load(path)
	misc.ErrorCheck(err)
	log.Printf("\tloaded %s: %d leaves, %d nodes (k=%d, %v)", path, tree.Len(), tree.NumNodes(), tree.KSize(), tree.Molecule())
	return tree
}

/*
  The main function for the prepare command
*/
func runPrepare(path string) {
	defer startLogging("prepare")()
	startTime := time.Now()
	tree := loadTree(path)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Printf("rebuilding internal nodes...")
	misc.ErrorCheck(tree.Rebuild(ctx))
	name := strings.TrimSuffix(path, sbt.ManifestExt)
	misc.ErrorCheck(tree.Save(name))
	log.Printf("\tsaved tree to %s", tree.Location())
	if *archiveFile != "" {
		if !sbt.IsArchive(*archiveFile) {
			misc.ErrorCheck(fmt.Errorf("unknown archive format: %s", *archiveFile))
		}
		misc.ErrorCheck(sbt.Archive(tree.Location(), *archiveFile))
		log.Printf("\tbundled tree into %s", *archiveFile)
	}
	log.Printf("finished in %s", time.Since(startTime))
}

/*
  The main function for the scaffold command
*/
func runScaffold(path string) {
	defer startLogging("scaffold")()
	startTime := time.Now()
	tree := loadTree(path)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	log.Printf("scaffolding a new tree...")
	scaffold, err := tree.Scaffold(ctx)
	misc.ErrorCheck(err)
	if scaffold.Len() != tree.Len() {
		misc.ErrorCheck(fmt.Errorf("scaffold lost leaves (%d of %d kept)", scaffold.Len(), tree.Len()))
	}
	misc.ErrorCheck(scaffold.Save(*scaffoldOut))
	log.Printf("\tsaved %d leaves to %s (depth %d)", scaffold.Len(), scaffold.Location(), scaffold.Depth())
	log.Printf("finished in %s", time.Since(startTime))
}

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
	"io"
	"log"
	"os"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/will-rowe/decoct/src/misc"
	"github.com/will-rowe/decoct/src/pipeline"
	"github.com/will-rowe/decoct/src/version"
)

// conflictExitCode is the exit code used when the parameters can't be used together
const conflictExitCode = 255

// the command line arguments
var (
	proc       *int    // number of processors to use
	profiling  *bool   // create profile for go pprof
	logFile    *string // file to write the log to
	quiet      *bool   // silence the log
	configFile *string // config file to read flag values from
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "decoct",
	Short: "compute MinHash signatures of sequence files and search them with Sequence Bloom Trees",
	Long: `
#####################################################################################
		decoct: k-mer sketches and Sequence Bloom Trees
#####################################################################################

 decoct computes MinHash signatures (bottom-k or scaled) of DNA and protein sequence
 files, and stores them in a sourmash compatible JSON format.

 Signatures can be collected into a Sequence Bloom Tree, a tree of Bloom filters that
 allows a query signature to be searched against large collections by similarity or
 containment without comparing it to every signature.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return bindConfig(cmd.Flags())
	},
	SilenceUsage: true,
}

/*
  A function to add all child commands to the root command and sets flags appropriately
*/
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

/*
  A function to initalise the command line arguments
*/
func init() {
	proc = RootCmd.PersistentFlags().IntP("processors", "p", 1, "number of processors to use")
	profiling = RootCmd.PersistentFlags().Bool("profiling", false, "create the files needed to profile decoct using the go tool pprof")
	logFile = RootCmd.PersistentFlags().String("log", "", "filename for log file, default = stderr")
	quiet = RootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress the log")
	configFile = RootCmd.PersistentFlags().String("config", "", "config file to read parameters from (default is ./decoct.yaml if present)")
	cobra.OnInitialize(initConfig)
}

// initConfig sets up the config file and environment variables that sit beneath the command line flags
func initConfig() {
	viper.SetEnvPrefix("DECOCT")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if *configFile != "" {
		viper.SetConfigFile(*configFile)
	} else {
		viper.SetConfigName("decoct")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || *configFile != "" {
			misc.ErrorCheck(errors.Wrap(err, "could not read config file"))
		}
	}
}

// bindConfig sets any flag that wasn't given on the command line from the config file or the environment
func bindConfig(flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(flag *pflag.Flag) {
		if err != nil || flag.Changed || flag.Name == "config" || !viper.IsSet(flag.Name) {
			return
		}
		value := viper.Get(flag.Name)
		if list, ok := value.([]interface{}); ok {
			items := make([]string, len(list))
			for i, item := range list {
				items[i] = fmt.Sprint(item)
			}
			value = strings.Join(items, ",")
		}
		if setErr := flags.Set(flag.Name, fmt.Sprint(value)); setErr != nil {
			err = errors.Wrapf(setErr, "bad value for %s in config", flag.Name)
		}
	})
	return err
}

// startLogging sends the log to a file, stderr or nowhere, and writes the sub-command banner.
// The returned function closes the log file.
func startLogging(subcommand string) func() {
	closer := func() {}
	switch {
	case *quiet:
		log.SetOutput(io.Discard)
	case *logFile != "":
		logFH := misc.StartLogging(*logFile)
		log.SetOutput(logFH)
		closer = func() { logFH.Close() }
	default:
		log.SetOutput(os.Stderr)
	}
	log.Printf("i am decoct (version %s)", version.GetVersion())
	log.Printf("starting the %s subcommand", subcommand)
	return closer
}

// setProcessors limits the number of processors to those available
func setProcessors() {
	if *proc <= 0 || *proc > runtime.NumCPU() {
		*proc = runtime.NumCPU()
	}
	runtime.GOMAXPROCS(*proc)
}

// exitCheck is misc.ErrorCheck, using a separate exit code for configuration conflicts
func exitCheck(err error) {
	if errors.Is(err, pipeline.ErrConfigurationConflict) {
		misc.ErrorExit(err, conflictExitCode)
	}
	misc.ErrorCheck(err)
}

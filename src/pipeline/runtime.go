package pipeline

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

var (
	// ErrUnsupportedInputMode is returned for barcoded (10x) input
	ErrUnsupportedInputMode = errors.New("unsupported input mode")

	// ErrConfigurationConflict is returned when the compute parameters can't be used together
	ErrConfigurationConflict = errors.New("configuration conflict")
)

// scaledWarning is the scaled value above which the user is warned
const scaledWarning = 1000000000

// Info stores the runtime information
type Info struct {
	Version   string
	NumProc   int
	Profiling bool
	Compute   ComputeCmd

	// OnFileDone is called (from worker go routines) once each input file has been sketched
	OnFileDone func(file string, elapsed time.Duration)
}

// ComputeCmd stores the runtime info for the compute command
type ComputeCmd struct {
	KSizes         []uint32
	NumHashes      uint32
	Scaled         uint64
	Seed           uint64
	DNA            bool
	Protein        bool
	Dayhoff        bool
	HP             bool
	InputIsProtein bool
	TrackAbundance bool
	HashFunction   minhash.HashFunction
	CanonicalOrder minhash.CanonicalOrder
	CheckSequence  bool
	QualTrim       int

	// naming and output
	Merge         string
	Singleton     bool
	NameFromFirst bool
	InputIs10x    bool
	Output        string
	OutDir        string
	License       string
}

// NewInfo returns an Info holding the default compute parameters
func NewInfo(version string) *Info {
	return &Info{
		Version: version,
		NumProc: 1,
		Compute: ComputeCmd{
			KSizes:    []uint32{21, 31, 51},
			NumHashes: 500,
			Seed:      minhash.DefaultSeed,
			DNA:       true,
			License:   signature.License,
		},
	}
}

// Validate checks the compute parameters before any file is read, adjusting the ones that are implied by others
func (Info *Info) Validate() error {
	c := &Info.Compute
	if c.InputIs10x {
		return errors.Wrap(ErrUnsupportedInputMode, "barcoded (10x) input is not supported")
	}
	if c.License != signature.License {
		return errors.Wrapf(ErrConfigurationConflict, "signatures can only be released under %s, not %q", signature.License, c.License)
	}
	if c.Merge != "" && c.Output == "" {
		return errors.Wrap(ErrConfigurationConflict, "must specify an output file (-o) when merging")
	}
	if c.Merge != "" && c.Singleton {
		return errors.Wrap(ErrConfigurationConflict, "can't use merge and singleton modes together")
	}
	if c.InputIsProtein && c.DNA {
		log.Printf("\tinput is protein, turning off nucleotide hashing")
		c.DNA = false
	}
	if c.Scaled > 0 && c.NumHashes != 0 {
		log.Printf("\tsetting num-hashes to 0 because scaled is set")
		c.NumHashes = 0
	}
	if c.Scaled >= scaledWarning {
		log.Printf("\tWARNING: scaled value (%d) is nonsensical!? continuing anyway", c.Scaled)
	}
	if c.Scaled == 0 && c.NumHashes == 0 {
		return errors.Wrap(ErrConfigurationConflict, "one of num-hashes or scaled must be set")
	}
	if len(c.KSizes) == 0 {
		return errors.Wrap(ErrConfigurationConflict, "no k-mer sizes given")
	}
	if !c.DNA && !c.Protein && !c.Dayhoff && !c.HP {
		return errors.Wrap(ErrConfigurationConflict, "no molecule types selected")
	}
	if c.HashFunction == minhash.NtHash && (c.InputIsProtein || c.Protein || c.Dayhoff || c.HP) {
		return errors.Wrap(ErrConfigurationConflict, "ntHash can only be used for DNA")
	}
	for _, k := range c.KSizes {
		if k == 0 {
			return errors.Wrap(ErrConfigurationConflict, "k-mer size must be greater than 0")
		}
		if (c.Protein || c.Dayhoff || c.HP) && k < 3 {
			return errors.Wrapf(ErrConfigurationConflict, "k-mer size %d is too small for protein sketches", k)
		}
	}
	if Info.NumProc < 1 {
		Info.NumProc = 1
	}
	return nil
}

// molecules returns the enabled molecule types, in the order their sketches are stored
func (c *ComputeCmd) molecules() []minhash.Molecule {
	var molecules []minhash.Molecule
	if c.Protein {
		molecules = append(molecules, minhash.Protein)
	}
	if c.Dayhoff {
		molecules = append(molecules, minhash.Dayhoff)
	}
	if c.HP {
		molecules = append(molecules, minhash.HP)
	}
	if c.DNA {
		molecules = append(molecules, minhash.DNA)
	}
	return molecules
}

// Template returns one empty sketch per k-mer size and molecule type
func (Info *Info) Template() []*minhash.KmerMinHash {
	c := &Info.Compute
	maxHash := minhash.MaxHashForScaled(c.Scaled)
	var template []*minhash.KmerMinHash
	for _, k := range c.KSizes {
		for _, molecule := range c.molecules() {
			mh := minhash.NewKmerMinHash(c.NumHashes, k, molecule, c.Seed, maxHash, c.TrackAbundance)
			mh.SetHashFunction(c.HashFunction)
			mh.SetCanonicalOrder(c.CanonicalOrder)
			template = append(template, mh)
		}
	}
	return template
}

// sigPath is the default output path for the signatures of an input file
func (Info *Info) sigPath(file string) string {
	base := file
	if file == "-" {
		base = "stdin"
	}
	sigFile := base + ".sig"
	if Info.Compute.OutDir != "" {
		sigFile = filepath.Join(Info.Compute.OutDir, filepath.Base(sigFile))
	}
	return sigFile
}

// String summarises the compute parameters for the log
func (c *ComputeCmd) String() string {
	return fmt.Sprintf("k=%v num=%d scaled=%d seed=%d molecules=%v abundance=%v", c.KSizes, c.NumHashes, c.Scaled, c.Seed, c.molecules(), c.TrackAbundance)
}

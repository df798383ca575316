package pipeline

/*
 this part of the pipeline streams the input files to a pool of sketchers and then collects and writes the signatures
*/

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/signature"
)

// job is a single input file, along with its position in the input list
type job struct {
	idx  int
	file string
}

// result holds the signatures (or error) for a single input file
type result struct {
	job
	sigs []*signature.Signature
	err  error
}

// DataStreamer is a pipeline process that streams the input files to the sketcher
type DataStreamer struct {
	info   *Info
	ctx    context.Context
	input  []string
	output chan job
}

// NewDataStreamer is the constructor
func NewDataStreamer(ctx context.Context, info *Info) *DataStreamer {
	return &DataStreamer{info: info, ctx: ctx, output: make(chan job, BUFFERSIZE)}
}

// Connect is the method to connect the DataStreamer to the input files
func (proc *DataStreamer) Connect(input []string) {
	proc.input = input
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *DataStreamer) Run() {
	defer close(proc.output)
	for i, file := range proc.input {
		select {
		case <-proc.ctx.Done():
			return
		case proc.output <- job{idx: i, file: file}:
		}
	}
}

// Sketcher is a pipeline process that sketches each input file, using a bounded pool of go routines
type Sketcher struct {
	info   *Info
	ctx    context.Context
	input  chan job
	output chan *result
}

// NewSketcher is the constructor
func NewSketcher(ctx context.Context, info *Info) *Sketcher {
	return &Sketcher{info: info, ctx: ctx, output: make(chan *result, BUFFERSIZE)}
}

// Connect is the method to join the input of this process with the output of a DataStreamer
func (proc *Sketcher) Connect(previous *DataStreamer) {
	proc.input = previous.output
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *Sketcher) Run() {
	defer close(proc.output)
	var wg sync.WaitGroup
	tokens := make(chan int, proc.info.NumProc)
	for j := range proc.input {
		tokens <- 1
		wg.Add(1)
		go func(j job) {
			defer func() {
				wg.Done()
				<-tokens
			}()
			startTime := time.Now()
			sigs, err := proc.info.SketchFile(proc.ctx, j.file)
			if proc.info.OnFileDone != nil {
				proc.info.OnFileDone(j.file, time.Since(startTime))
			}
			proc.output <- &result{job: j, sigs: sigs, err: err}
		}(j)
	}
	wg.Wait()
}

// SigWriter is a pipeline process that collects the signatures and writes them to disk
type SigWriter struct {
	info     *Info
	ctx      context.Context
	input    chan *result
	numFiles int
	lastFile string
	sigs     []*signature.Signature
	failed   int
	err      error
}

// NewSigWriter is the constructor
func NewSigWriter(ctx context.Context, info *Info) *SigWriter {
	return &SigWriter{info: info, ctx: ctx}
}

// Connect is the method to join the input of this process with the output of a Sketcher
func (proc *SigWriter) Connect(previous *Sketcher, files []string) {
	proc.input = previous.output
	proc.numFiles = len(files)
	if len(files) != 0 {
		proc.lastFile = files[len(files)-1]
	}
}

// Run is the method to run this process, which satisfies the pipeline interface
func (proc *SigWriter) Run() {
	c := &proc.info.Compute
	collected := make([][]*signature.Signature, proc.numFiles)
	for res := range proc.input {
		if res.err != nil {
			if proc.ctx.Err() == nil {
				log.Printf("\tskipping %s: %v", res.file, res.err)
			}
			proc.failed++
			continue
		}
		collected[res.idx] = res.sigs
		if c.Output == "" && c.Merge == "" {
			sigFile := proc.info.sigPath(res.file)
			if err := signature.SaveFile(sigFile, res.sigs); err != nil {
				log.Printf("\tcould not save signatures for %s: %v", res.file, err)
				proc.failed++
				continue
			}
			log.Printf("\tsaved %d signature(s) for %s to %s", len(res.sigs), res.file, sigFile)
		}
	}
	if err := proc.ctx.Err(); err != nil {
		proc.err = errors.Wrap(err, "compute was cancelled, partial signatures were discarded")
		return
	}

	if proc.failed == proc.numFiles {
		proc.err = errors.Errorf("no signatures could be computed (%d files failed)", proc.failed)
		return
	}

	// keep input order for the combined outputs
	for _, sigs := range collected {
		proc.sigs = append(proc.sigs, sigs...)
	}
	if c.Merge != "" {
		merged, err := proc.info.MergeSignatures(proc.sigs, proc.lastFile)
		if err != nil {
			proc.err = err
			return
		}
		proc.sigs = []*signature.Signature{merged}
	}
	if c.Output != "" {
		if err := signature.SaveFile(c.Output, proc.sigs); err != nil {
			proc.err = err
			return
		}
		log.Printf("\tsaved %d signature(s) to %s", len(proc.sigs), c.Output)
	}
}

// Err returns the error that stopped the writer (if any)
func (proc *SigWriter) Err() error {
	return proc.err
}

// Signatures returns the signatures that were written
func (proc *SigWriter) Signatures() []*signature.Signature {
	return proc.sigs
}

// Failed returns the number of input files that could not be sketched
func (proc *SigWriter) Failed() int {
	return proc.failed
}

// Compute runs the whole compute pipeline over the input files and returns the signatures that were produced
func Compute(ctx context.Context, info *Info, files []string) ([]*signature.Signature, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no input files")
	}
	streamer := NewDataStreamer(ctx, info)
	sketcher := NewSketcher(ctx, info)
	writer := NewSigWriter(ctx, info)
	streamer.Connect(files)
	sketcher.Connect(streamer)
	writer.Connect(sketcher, files)
	computePipeline := NewPipeline()
	computePipeline.AddProcesses(streamer, sketcher, writer)
	if err := computePipeline.Run(); err != nil {
		return nil, err
	}
	return writer.Signatures(), nil
}

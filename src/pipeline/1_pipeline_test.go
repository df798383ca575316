package pipeline

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/version"
)

///////////////////////////////////////////////////////////////////////////////////////////////

/*
TEST DATA
*/
const tmpDir = "test-data/tmp"

// a 10 kb random genome, split over two records
var genome = randomGenome(10000, 42)

var (
	genomeFile   = filepath.Join(tmpDir, "genome.fa")
	recordsFile  = filepath.Join(tmpDir, "records.fa")
	firstHalf    = filepath.Join(tmpDir, "half1.fa")
	secondHalf   = filepath.Join(tmpDir, "half2.fa")
	emptyFile    = filepath.Join(tmpDir, "empty.fa")
	firstHeader  = "gi|556503834:337-2799 Escherichia coli str. K-12 substr. MG1655, complete genome"
	secondHeader = "plasmid1 a second record"
)

func randomGenome(length int, seed int64) string {
	r := rand.New(rand.NewSource(seed))
	seq := make([]byte, length)
	for i := range seq {
		seq[i] = "ACGT"[r.Intn(4)]
	}
	return string(seq)
}

///////////////////////////////////////////////////////////////////////////////////////////////

/*
TEST PARAMETERS
*/
func testParameters() *Info {
	info := NewInfo(version.GetVersion())
	info.NumProc = 2
	info.Compute.KSizes = []uint32{21, 31}
	info.Compute.NumHashes = 0
	info.Compute.Scaled = 10
	info.Compute.OutDir = tmpDir
	return info
}

func setupTmpDir(t *testing.T) {
	_ = os.RemoveAll(tmpDir)
	if err := os.MkdirAll(tmpDir, 0777); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		genomeFile:  ">" + firstHeader + "\n" + genome + "\n",
		recordsFile: ">" + firstHeader + "\n" + genome[:5000] + "\n>" + secondHeader + "\n" + genome[5000:] + "\n",
		firstHalf:   ">half1\n" + genome[:5030] + "\n",
		secondHalf:  ">half2\n" + genome[5000:] + "\n",
		emptyFile:   "",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

///////////////////////////////////////////////////////////////////////////////////////////////

/*
DUMMY PIPELINE
*/

type ComponentA struct {
	input  []int
	output chan int
}

func NewComponentA(i []int) *ComponentA {
	return &ComponentA{input: i, output: make(chan int)}
}

func (ComponentA *ComponentA) Run() {
	defer close(ComponentA.output)
	for _, input := range ComponentA.input {
		ComponentA.output <- input
	}
}

type ComponentB struct {
	input    chan int
	addition int
	results  []int
	err      error
}

func NewComponentB(i int) *ComponentB {
	return &ComponentB{addition: i}
}

func (ComponentB *ComponentB) Connect(previous *ComponentA) {
	ComponentB.input = previous.output
}

func (ComponentB *ComponentB) Run() {
	results := []int{}
	for input := range ComponentB.input {
		if input < 0 {
			ComponentB.err = errors.New("negative input")
			continue
		}
		results = append(results, (input + ComponentB.addition))
	}
	ComponentB.results = results
}

func (ComponentB *ComponentB) Err() error {
	return ComponentB.err
}

///////////////////////////////////////////////////////////////////////////////////////////////

/*
DUMMY PIPELINE TEST
*/

func TestPipeline(t *testing.T) {
	inputValues := []int{1, 2, 3, 4}
	expectedOutput := []int{11, 12, 13, 14}

	// create the processes
	a := NewComponentA(inputValues)
	b := NewComponentB(10)

	// create the pipeline
	newPipeline := NewPipeline()

	// add the processes and connect them
	newPipeline.AddProcesses(a, b)
	b.Connect(a)
	if newPipeline.GetNumProcesses() != 2 {
		t.Fatal("did not add correct number of processes to pipeline")
	}

	// run the pipeline
	if err := newPipeline.Run(); err != nil {
		t.Fatal(err)
	}

	// once the pipeline is done, there should be results in the final component
	if len(expectedOutput) != len(b.results) {
		t.Fatal("pipeline did not produce expected output")
	}
	for i, val := range b.results {
		if val != expectedOutput[i] {
			t.Fatal("pipeline did not produce expected output")
		}
	}
}

func TestPipelineError(t *testing.T) {
	a := NewComponentA([]int{1, -1, 2})
	b := NewComponentB(10)
	b.Connect(a)
	newPipeline := NewPipeline()
	newPipeline.AddProcesses(a, b)
	if err := newPipeline.Run(); err == nil {
		t.Fatal("pipeline should report the error from its processes")
	}
	if len(b.results) != 2 {
		t.Fatal("pipeline should still process the good inputs")
	}
}

func TestTemplate(t *testing.T) {
	info := testParameters()
	info.Compute.Protein = true
	if err := info.Validate(); err != nil {
		t.Fatal(err)
	}
	template := info.Template()
	if len(template) != 4 {
		t.Fatalf("expected 4 sketches (2 k-mer sizes x 2 molecules), got %d", len(template))
	}
	if template[0].Molecule() != minhash.Protein || template[1].Molecule() != minhash.DNA || template[2].KSize() != 31 {
		t.Fatal("template sketches are in the wrong order")
	}
	if template[0].Num() != 0 || template[0].Scaled() != 10 {
		t.Fatal("template sketches should be scaled")
	}
}

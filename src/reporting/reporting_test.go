package reporting

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/will-rowe/decoct/src/index"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/signature"
)

func testMatches(t *testing.T) []*index.Match {
	seqs := []string{
		"ACTGCGTGCGTGAAACGTGCACGTGACGTGTTGACCATGACCAGGTACCAGTTAGGCAT",
		"TTTTAGCGCGATATCGCGGCTAGCTAGGGATCCCGATTTACGGGCATCATCAGGCATTTAGAC",
		"GGGCCCAAATTTAGCTAGCTAGGATCCACTGCGTGCGTGAAACGTGCACGTGACGTGTTGAC",
	}
	scores := []float64{1.0, 0.5, 0.125}
	matches := make([]*index.Match, len(seqs))
	for i, seq := range seqs {
		mh := minhash.NewKmerMinHash(0, 21, minhash.DNA, minhash.DefaultSeed, minhash.MaxHashForScaled(1), false)
		if err := mh.AddSequence([]byte(seq), false); err != nil {
			t.Fatal(err)
		}
		name := "match " + string(rune('a'+i))
		matches[i] = &index.Match{Score: scores[i], Signature: signature.New(name, name+".fa", mh), Origin: "db"}
	}
	return matches
}

func TestReport(t *testing.T) {
	matches := testMatches(t)
	var buf bytes.Buffer
	if err := Report(&buf, matches, 2, false); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "3 matches; showing first 2:" || lines[1] != "similarity   match" {
		t.Fatalf("unexpected report header:\n%s", buf.String())
	}
	if !strings.HasPrefix(lines[3], "100.0%       match a") || !strings.HasPrefix(lines[4], " 50.0%       match b") {
		t.Fatalf("unexpected report rows:\n%s", buf.String())
	}

	buf.Reset()
	if err := Report(&buf, matches[:1], 3, true); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "1 matches:\n") || !strings.Contains(buf.String(), "best-only") {
		t.Fatalf("unexpected best-only report:\n%s", buf.String())
	}

	buf.Reset()
	if err := Report(&buf, nil, 3, false); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "0 matches:\n" {
		t.Fatalf("unexpected empty report: %q", buf.String())
	}
}

func TestWriteCSV(t *testing.T) {
	matches := testMatches(t)
	path := filepath.Join(t.TempDir(), "matches.csv")
	if err := WriteCSVFile(path, matches); err != nil {
		t.Fatal(err)
	}
	fh, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fh.Close()
	records, err := csv.NewReader(fh).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != len(matches)+1 || strings.Join(records[0], ",") != "similarity,name,filename,md5" {
		t.Fatal("unexpected CSV layout")
	}
	for i, match := range matches {
		record := records[i+1]
		if record[1] != match.Signature.Name || record[2] != match.Signature.Filename || record[3] != match.Signature.Md5sum() {
			t.Fatalf("unexpected CSV record: %v", record)
		}
	}
	if records[3][0] != "0.125" {
		t.Fatalf("unexpected CSV score: %s", records[3][0])
	}
}

func TestSaveMatches(t *testing.T) {
	matches := testMatches(t)
	path := filepath.Join(t.TempDir(), "matches.sig")
	if err := SaveMatches(path, matches); err != nil {
		t.Fatal(err)
	}
	sigs, err := signature.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != len(matches) {
		t.Fatalf("expected %d saved signatures, got %d", len(matches), len(sigs))
	}
	for i, sig := range sigs {
		if sig.Md5sum() != matches[i].Signature.Md5sum() {
			t.Fatal("saved signatures do not match")
		}
	}
}

func TestPlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "matches.png")
	if err := Plot(path, testMatches(t), 2, "similarity"); err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		t.Fatal("plot was not written")
	}
	if err := Plot(path, nil, 2, "similarity"); err == nil {
		t.Fatal("can't plot without matches")
	}
}

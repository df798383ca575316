package seqio

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// Format is a sequence file format
type Format int

const (
	Unknown Format = iota
	FASTA
	FASTQ
	BAM
)

// String returns the name of the format
func (f Format) String() string {
	switch f {
	case FASTA:
		return "FASTA"
	case FASTQ:
		return "FASTQ"
	case BAM:
		return "BAM"
	}
	return "unknown"
}

// Reader yields the records from a sequence file
type Reader struct {
	format Format
	next   func() (*Sequence, error)
	closer io.Closer
}

// NewReader detects the format of a (possibly compressed) FASTA or FASTQ stream and returns a Reader for it.
// An empty stream gives a Reader that returns io.EOF straight away.
func NewReader(r io.Reader, protein bool) (*Reader, error) {
	rc, err := decompress(r)
	if err != nil {
		return nil, err
	}
	reader, err := newTextReader(rc, protein)
	if err != nil {
		rc.Close()
		return nil, err
	}
	reader.closer = rc
	return reader, nil
}

// OpenSequences opens a sequence file (or STDIN for "-"). Files with a .bam extension are read as BAM.
func OpenSequences(path string, protein bool) (*Reader, error) {
	if strings.HasSuffix(strings.ToLower(path), ".bam") {
		return openBAM(path)
	}
	fh, err := Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := newTextReader(fh, protein)
	if err != nil {
		fh.Close()
		return nil, errors.Wrap(err, path)
	}
	reader.closer = fh
	return reader, nil
}

// newTextReader peeks at the first non-space byte to choose between FASTA and FASTQ
func newTextReader(r io.Reader, protein bool) (*Reader, error) {
	br := bufio.NewReader(r)
	var first byte
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			return &Reader{next: func() (*Sequence, error) { return nil, io.EOF }}, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "could not read sequence file")
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		first = b
		if err := br.UnreadByte(); err != nil {
			return nil, err
		}
		break
	}
	alpha := alphabet.Alphabet(alphabet.DNAredundant)
	if protein {
		alpha = alphabet.Protein
	}
	switch first {
	case '>':
		fr := fasta.NewReader(br, linear.NewSeq("", nil, alpha))
		return &Reader{format: FASTA, next: func() (*Sequence, error) { return convert(fr.Read()) }}, nil
	case '@':
		fr := fastq.NewReader(br, linear.NewQSeq("", nil, alpha, alphabet.Sanger))
		return &Reader{format: FASTQ, next: func() (*Sequence, error) { return convert(fr.Read()) }}, nil
	}
	return nil, errors.Errorf("unrecognised sequence format (file starts with %q)", first)
}

// convert copies a biogo sequence into a Sequence
func convert(s seq.Sequence, err error) (*Sequence, error) {
	if err != nil {
		return nil, err
	}
	record := &Sequence{
		ID:   []byte(s.Name()),
		Desc: []byte(s.Description()),
		Seq:  make([]byte, 0, s.Len()),
	}
	_, hasQual := s.(*linear.QSeq)
	if hasQual {
		record.Qual = make([]byte, 0, s.Len())
	}
	for i := s.Start(); i < s.End(); i++ {
		ql := s.At(i)
		record.Seq = append(record.Seq, byte(ql.L))
		if hasQual {
			record.Qual = append(record.Qual, byte(ql.Q)+encoding)
		}
	}
	return record, nil
}

// openBAM reads the primary alignments (and unmapped reads) from a BAM file
func openBAM(path string) (*Reader, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open file")
	}
	br, err := bam.NewReader(fh, 0)
	if err != nil {
		fh.Close()
		return nil, errors.Wrapf(err, "could not read BAM header: %s", path)
	}
	next := func() (*Sequence, error) {
		for {
			rec, err := br.Read()
			if err != nil {
				return nil, err
			}
			if rec.Flags&(sam.Secondary|sam.Supplementary) != 0 {
				continue
			}
			record := &Sequence{ID: []byte(rec.Name), Seq: rec.Seq.Expand()}
			if len(rec.Qual) == len(record.Seq) {
				record.Qual = make([]byte, len(rec.Qual))
				for i, q := range rec.Qual {
					record.Qual[i] = q + encoding
				}
			}
			return record, nil
		}
	}
	return &Reader{format: BAM, next: next, closer: multiCloser{br, fh}}, nil
}

type multiCloser []io.Closer

func (mc multiCloser) Close() error {
	var err error
	for _, c := range mc {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Format returns the format being read (Unknown for an empty file)
func (r *Reader) Format() Format {
	return r.format
}

// Read returns the next record, or io.EOF when there are none left
func (r *Reader) Read() (*Sequence, error) {
	return r.next()
}

// Close releases the underlying file
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

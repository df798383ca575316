/*
	the seqio package reads sequence records from FASTA, FASTQ and BAM files (plain or compressed)
*/
package seqio

// encoding used for FASTQ quality scores
const encoding = 33

// Sequence is a single sequence record
type Sequence struct {
	ID   []byte
	Desc []byte
	Seq  []byte

	// Qual is only set for FASTQ/BAM records, it is phred+33 encoded
	Qual []byte
}

// Header is the full record header: the ID, then the description (if any) after a space
func (Sequence *Sequence) Header() string {
	if len(Sequence.Desc) == 0 {
		return string(Sequence.ID)
	}
	return string(Sequence.ID) + " " + string(Sequence.Desc)
}

// QualTrim is a method to quality trim the sequence, it does nothing for records without quality scores
/* the algorithm is based on bwa/cutadapt read quality trim functions:
-1. for each index position, subtract qual cutoff from the quality score
-2. sum these values across the read and trim at the index where the sum in minimal
-3. return the high-quality region
*/
func (Sequence *Sequence) QualTrim(minQual int) {
	if len(Sequence.Qual) == 0 || len(Sequence.Qual) != len(Sequence.Seq) {
		return
	}
	start, qualSum, qualMax := 0, 0, 0
	end := len(Sequence.Qual)
	for i, qual := range Sequence.Qual {
		qualSum += minQual - (int(qual) - encoding)
		if qualSum < 0 {
			break
		}
		if qualSum > qualMax {
			qualMax = qualSum
			start = i + 1
		}
	}
	qualSum, qualMax = 0, 0
	for i, j := 0, len(Sequence.Qual)-1; j >= i; j-- {
		qualSum += minQual - (int(Sequence.Qual[j]) - encoding)
		if qualSum < 0 {
			break
		}
		if qualSum > qualMax {
			qualMax = qualSum
			end = j
		}
	}
	if start >= end {
		start, end = 0, 0
	}
	Sequence.Seq = Sequence.Seq[start:end]
	Sequence.Qual = Sequence.Qual[start:end]
}

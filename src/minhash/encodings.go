package minhash

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Molecule is the alphabet a sketch is built over
type Molecule uint8

const (
	DNA Molecule = iota
	Protein
	Dayhoff
	HP
)

// String returns the name used for the molecule in signature files
func (m Molecule) String() string {
	switch m {
	case DNA:
		return "DNA"
	case Protein:
		return "protein"
	case Dayhoff:
		return "dayhoff"
	case HP:
		return "hp"
	}
	return fmt.Sprintf("molecule(%d)", uint8(m))
}

// IsProtein reports if the molecule is protein or a reduced protein alphabet
func (m Molecule) IsProtein() bool {
	return m != DNA
}

// ParseMolecule converts a molecule name to a Molecule (case-insensitive)
func ParseMolecule(name string) (Molecule, error) {
	switch strings.ToLower(name) {
	case "dna":
		return DNA, nil
	case "protein":
		return Protein, nil
	case "dayhoff":
		return Dayhoff, nil
	case "hp":
		return HP, nil
	}
	return DNA, fmt.Errorf("unknown molecule type: %q", name)
}

// HashFunction is the function used to hash DNA k-mers
type HashFunction uint8

const (
	// Murmur64 is the seeded murmur3 x64_128 hash (first 64 bits), the default
	Murmur64 HashFunction = iota

	// NtHash is the ntHash rolling hash, it is only used for DNA and ignores the seed
	NtHash
)

// String returns the hash_function field used in signature files
func (hf HashFunction) String() string {
	if hf == NtHash {
		return "0.nthash"
	}
	return "0.murmur64"
}

// ParseHashFunction accepts either the short name or the signature file name of a hash function
func ParseHashFunction(name string) (HashFunction, error) {
	switch strings.TrimPrefix(strings.ToLower(name), "0.") {
	case "murmur64", "":
		return Murmur64, nil
	case "nthash":
		return NtHash, nil
	}
	return Murmur64, fmt.Errorf("unknown hash function: %q", name)
}

// CanonicalOrder sets whether invalid bases are replaced before or after a DNA k-mer is canonicalised
type CanonicalOrder uint8

const (
	// NormaliseFirst replaces invalid bases with A, then picks the smaller of the k-mer and its reverse complement
	NormaliseFirst CanonicalOrder = iota

	// CanonicaliseFirst picks the smaller of the raw k-mer and its raw reverse complement, then replaces invalid bases in the pick
	CanonicaliseFirst
)

// ParseCanonicalOrder converts a flag value to a CanonicalOrder
func ParseCanonicalOrder(name string) (CanonicalOrder, error) {
	switch strings.ToLower(name) {
	case "normalise-first", "normalize-first", "":
		return NormaliseFirst, nil
	case "canonicalise-first", "canonicalize-first":
		return CanonicaliseFirst, nil
	}
	return NormaliseFirst, fmt.Errorf("unknown canonical order: %q", name)
}

// placeholder replaces any invalid DNA base when not checking sequences strictly
const placeholder = 'A'

// complementBases is the lookup table used during reverse complementation, anything else maps to itself
var complementBases [256]byte

// validBases marks the upper case DNA bases
var validBases [256]bool

func init() {
	for i := range complementBases {
		complementBases[i] = byte(i)
	}
	for _, pair := range []string{"AT", "TA", "CG", "GC"} {
		complementBases[pair[0]] = pair[1]
		validBases[pair[0]] = true
	}
}

// RevComplement returns the reverse complement of a DNA sequence
func RevComplement(seq []byte) []byte {
	rc := make([]byte, len(seq))
	for i, j := 0, len(seq)-1; j >= 0; i, j = i+1, j-1 {
		rc[i] = complementBases[seq[j]]
	}
	return rc
}

// NormaliseDNA upper cases a sequence in place and replaces any non-ACGT byte with A, or returns ErrMalformedSequence if strict
func NormaliseDNA(seq []byte, strict bool) error {
	for i, base := range seq {
		if base >= 'a' && base <= 'z' {
			base -= 'a' - 'A'
			seq[i] = base
		}
		if validBases[base] {
			continue
		}
		if strict {
			return errors.Wrapf(ErrMalformedSequence, "invalid base %q at position %d", base, i)
		}
		seq[i] = placeholder
	}
	return nil
}

// upperCase upper cases a sequence in place
func upperCase(seq []byte) {
	for i, base := range seq {
		if base >= 'a' && base <= 'z' {
			seq[i] = base - ('a' - 'A')
		}
	}
}

// replaceInvalid swaps any non-ACGT byte for the placeholder
func replaceInvalid(kmer []byte) {
	for i, base := range kmer {
		if !validBases[base] {
			kmer[i] = placeholder
		}
	}
}

// codonTable is the standard genetic code, indexed by 16*b1 + 4*b2 + b3 with bases ordered TCAG
const codonTable = "FFLLSSSSYY**CC*WLLLLPPPPHHQQRRRRIIIMTTTTNNKKSSRRVVVVAAAADDEEGGGG"

var codonIndex = [256]int8{}

func init() {
	for i := range codonIndex {
		codonIndex[i] = -1
	}
	for i, base := range []byte("TCAG") {
		codonIndex[base] = int8(i)
	}
}

// translateCodon returns the amino acid for a codon, or X if it holds anything but ACGT
func translateCodon(codon []byte) byte {
	b1, b2, b3 := codonIndex[codon[0]], codonIndex[codon[1]], codonIndex[codon[2]]
	if b1 < 0 || b2 < 0 || b3 < 0 {
		return 'X'
	}
	return codonTable[int(b1)*16+int(b2)*4+int(b3)]
}

// Translate converts a DNA sequence to protein, starting at the given frame (0, 1 or 2)
func Translate(seq []byte, frame int) []byte {
	if frame >= len(seq) {
		return nil
	}
	seq = seq[frame:]
	aa := make([]byte, 0, len(seq)/3)
	for i := 0; i+3 <= len(seq); i += 3 {
		aa = append(aa, translateCodon(seq[i:i+3]))
	}
	return aa
}

// dayhoffTable collapses amino acids to the 6 Dayhoff classes
var dayhoffTable = map[byte]byte{
	'C': 'a',
	'A': 'b', 'G': 'b', 'P': 'b', 'S': 'b', 'T': 'b',
	'D': 'c', 'E': 'c', 'N': 'c', 'Q': 'c',
	'H': 'd', 'K': 'd', 'R': 'd',
	'I': 'e', 'L': 'e', 'M': 'e', 'V': 'e',
	'F': 'f', 'W': 'f', 'Y': 'f',
}

// hpTable collapses amino acids to hydrophobic (h) or polar (p)
var hpTable = map[byte]byte{
	'A': 'h', 'F': 'h', 'G': 'h', 'I': 'h', 'L': 'h', 'M': 'h', 'P': 'h', 'V': 'h', 'W': 'h', 'Y': 'h',
	'N': 'p', 'C': 'p', 'S': 'p', 'T': 'p', 'D': 'p', 'E': 'p', 'R': 'p', 'H': 'p', 'K': 'p', 'Q': 'p',
}

// encodeProtein reduces a protein sequence to the alphabet of the molecule, in place
func encodeProtein(aa []byte, molecule Molecule) []byte {
	var table map[byte]byte
	switch molecule {
	case Dayhoff:
		table = dayhoffTable
	case HP:
		table = hpTable
	default:
		return aa
	}
	for i, residue := range aa {
		if enc, ok := table[residue]; ok {
			aa[i] = enc
		}
	}
	return aa
}

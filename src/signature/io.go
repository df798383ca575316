package signature

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/will-rowe/decoct/src/seqio"
)

// signatureRecord is the on-disk layout of a signature
type signatureRecord struct {
	Class        string         `json:"class"`
	Email        string         `json:"email"`
	HashFunction string         `json:"hash_function"`
	Filename     string         `json:"filename"`
	Name         string         `json:"name,omitempty"`
	License      string         `json:"license"`
	Signatures   []sketchRecord `json:"signatures"`
	Version      float64        `json:"version"`
}

// sketchRecord is the on-disk layout of a sketch, num is 0 for scaled sketches
type sketchRecord struct {
	Num        uint32   `json:"num"`
	Ksize      uint32   `json:"ksize"`
	Seed       uint64   `json:"seed"`
	MaxHash    uint64   `json:"max_hash"`
	Mins       []uint64 `json:"mins"`
	Md5sum     string   `json:"md5sum"`
	Abundances []uint64 `json:"abundances,omitempty"`
	Molecule   string   `json:"molecule"`
}

// MarshalJSON writes the signature in the sourmash layout
func (sig *Signature) MarshalJSON() ([]byte, error) {
	rec := signatureRecord{
		Class:        sig.Class,
		Email:        sig.Email,
		HashFunction: sig.HashFunction,
		Filename:     sig.Filename,
		Name:         sig.Name,
		License:      sig.License,
		Signatures:   make([]sketchRecord, len(sig.Sketches)),
		Version:      sig.Version,
	}
	for i, mh := range sig.Sketches {
		rec.Signatures[i] = sketchRecord{
			Num:        mh.Num(),
			Ksize:      mh.KSize(),
			Seed:       mh.Seed(),
			MaxHash:    mh.MaxHash(),
			Mins:       mh.Mins(),
			Md5sum:     mh.Md5sum(),
			Abundances: mh.Abundances(),
			Molecule:   mh.Molecule().String(),
		}
		if rec.Signatures[i].Mins == nil {
			rec.Signatures[i].Mins = []uint64{}
		}
	}
	return json.Marshal(rec)
}

// UnmarshalJSON reads a signature in the sourmash layout
func (sig *Signature) UnmarshalJSON(data []byte) error {
	var rec signatureRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	hf, err := minhash.ParseHashFunction(rec.HashFunction)
	if err != nil {
		return err
	}
	sketches := make([]*minhash.KmerMinHash, len(rec.Signatures))
	for i, sr := range rec.Signatures {
		molecule := minhash.DNA
		if sr.Molecule != "" {
			if molecule, err = minhash.ParseMolecule(sr.Molecule); err != nil {
				return err
			}
		}
		mh := minhash.NewKmerMinHash(sr.Num, sr.Ksize, molecule, sr.Seed, sr.MaxHash, sr.Abundances != nil)
		mh.SetHashFunction(hf)
		if err := mh.SetHashes(sr.Mins, sr.Abundances); err != nil {
			return errors.Wrapf(err, "sketch %d of %q", i, rec.Name)
		}
		sketches[i] = mh
	}
	*sig = Signature{
		Class:        rec.Class,
		Email:        rec.Email,
		HashFunction: rec.HashFunction,
		Filename:     rec.Filename,
		Name:         rec.Name,
		License:      rec.License,
		Version:      rec.Version,
		Sketches:     sketches,
	}
	return nil
}

// Load reads the signatures held in a JSON document, which can be a list or a single signature
func Load(r io.Reader) ([]*Signature, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "could not read signatures")
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("no signatures found")
	}
	if data[0] != '[' {
		sig := &Signature{}
		if err := json.Unmarshal(data, sig); err != nil {
			return nil, errors.Wrap(err, "could not decode signature")
		}
		return []*Signature{sig}, nil
	}
	var sigs []*Signature
	if err := json.Unmarshal(data, &sigs); err != nil {
		return nil, errors.Wrap(err, "could not decode signatures")
	}
	return sigs, nil
}

// LoadFile reads the signatures from a (possibly compressed) file
func LoadFile(path string) ([]*Signature, error) {
	fh, err := seqio.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	sigs, err := Load(fh)
	return sigs, errors.Wrap(err, path)
}

// Save writes the signatures as a JSON list
func Save(w io.Writer, sigs []*Signature) error {
	if sigs == nil {
		sigs = []*Signature{}
	}
	return json.NewEncoder(w).Encode(sigs)
}

// SaveFile writes the signatures to a file as a JSON list
func SaveFile(path string, sigs []*Signature) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create signature file")
	}
	bw := bufio.NewWriter(fh)
	if err := Save(bw, sigs); err != nil {
		fh.Close()
		return errors.Wrapf(err, "could not write %s", path)
	}
	if err := bw.Flush(); err != nil {
		fh.Close()
		return errors.Wrapf(err, "could not write %s", path)
	}
	return fh.Close()
}

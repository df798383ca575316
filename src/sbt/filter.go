package sbt

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/minhash"
	"github.com/willf/bloom"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// filterBlobVersion is the version of the msgpack envelope used for stored filters
const filterBlobVersion = 1

// Filter is the Bloom filter held by each node of the tree
type Filter struct {
	bf *bloom.BloomFilter
}

// filterBlob is the stored form of a Filter
type filterBlob struct {
	Version int    `msgpack:"version"`
	M       uint   `msgpack:"m"`
	K       uint   `msgpack:"k"`
	Bits    []byte `msgpack:"bits"`
}

// NewFilter is the constructor for an empty Filter of m bits and k hash functions
func NewFilter(m, k uint) *Filter {
	return &Filter{bf: bloom.New(m, k)}
}

// hashKey encodes a sketch hash for the Bloom filter
func hashKey(buf []byte, hash uint64) []byte {
	binary.LittleEndian.PutUint64(buf, hash)
	return buf
}

// AddSketch sets the bits for every hash in a sketch
func (f *Filter) AddSketch(mh *minhash.KmerMinHash) {
	buf := make([]byte, 8)
	for _, h := range mh.Mins() {
		f.bf.Add(hashKey(buf, h))
	}
}

// Contains reports if the hash may have been added to the filter
func (f *Filter) Contains(hash uint64) bool {
	return f.bf.Test(hashKey(make([]byte, 8), hash))
}

// Fraction returns the fraction of the query hashes that may be in the filter, this is 0 for an empty query
func (f *Filter) Fraction(query *minhash.KmerMinHash) float64 {
	mins := query.Mins()
	if len(mins) == 0 {
		return 0.0
	}
	buf := make([]byte, 8)
	found := 0
	for _, h := range mins {
		if f.bf.Test(hashKey(buf, h)) {
			found++
		}
	}
	return float64(found) / float64(len(mins))
}

// Union ORs the bits of another filter into this one
func (f *Filter) Union(other *Filter) error {
	return f.bf.Merge(other.bf)
}

// Copy returns a copy of the filter
func (f *Filter) Copy() *Filter {
	return &Filter{bf: f.bf.Copy()}
}

// Equal reports if two filters have the same parameters and bits
func (f *Filter) Equal(other *Filter) bool {
	return f.bf.Equal(other.bf)
}

// Cap returns the number of bits in the filter
func (f *Filter) Cap() uint { return f.bf.Cap() }

// K returns the number of hash functions
func (f *Filter) K() uint { return f.bf.K() }

// MarshalBinary packs the filter into a msgpack envelope
func (f *Filter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := f.bf.WriteTo(&buf); err != nil {
		return nil, err
	}
	return msgpack.Marshal(&filterBlob{
		Version: filterBlobVersion,
		M:       f.bf.Cap(),
		K:       f.bf.K(),
		Bits:    buf.Bytes(),
	})
}

// UnmarshalBinary unpacks a filter from its msgpack envelope
func (f *Filter) UnmarshalBinary(data []byte) error {
	blob := &filterBlob{}
	if err := msgpack.Unmarshal(data, blob); err != nil {
		return errors.Wrap(ErrIndexFormat, err.Error())
	}
	if blob.Version != filterBlobVersion {
		return errors.Wrapf(ErrIndexFormat, "unknown filter version (%d)", blob.Version)
	}
	bf := &bloom.BloomFilter{}
	if _, err := bf.ReadFrom(bytes.NewReader(blob.Bits)); err != nil {
		return errors.Wrap(ErrIndexFormat, err.Error())
	}
	if bf.Cap() != blob.M || bf.K() != blob.K {
		return errors.Wrapf(ErrIndexFormat, "filter parameters (%d, %d) do not match the envelope (%d, %d)", bf.Cap(), bf.K(), blob.M, blob.K)
	}
	f.bf = bf
	return nil
}

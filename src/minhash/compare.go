package minhash

import (
	"math"

	"github.com/pkg/errors"
)

// Merge adds the hashes of another sketch to the receiver. Abundances are summed for shared hashes.
func (mh *KmerMinHash) Merge(other *KmerMinHash) error {
	if err := mh.CheckCompatible(other); err != nil {
		return err
	}
	trackAbund := mh.abunds != nil
	merged := make([]uint64, 0, len(mh.mins)+len(other.mins))
	var mergedAbunds []uint64
	if trackAbund {
		mergedAbunds = make([]uint64, 0, cap(merged))
	}
	abundAt := func(abunds []uint64, i int) uint64 {
		if abunds == nil {
			return 1
		}
		return abunds[i]
	}
	i, j := 0, 0
	for i < len(mh.mins) || j < len(other.mins) {
		if mh.num > 0 && len(merged) == int(mh.num) {
			break
		}
		switch {
		case j == len(other.mins) || (i < len(mh.mins) && mh.mins[i] < other.mins[j]):
			merged = append(merged, mh.mins[i])
			if trackAbund {
				mergedAbunds = append(mergedAbunds, mh.abunds[i])
			}
			i++
		case i == len(mh.mins) || other.mins[j] < mh.mins[i]:
			merged = append(merged, other.mins[j])
			if trackAbund {
				mergedAbunds = append(mergedAbunds, abundAt(other.abunds, j))
			}
			j++
		default:
			merged = append(merged, mh.mins[i])
			if trackAbund {
				mergedAbunds = append(mergedAbunds, mh.abunds[i]+abundAt(other.abunds, j))
			}
			i++
			j++
		}
	}
	mh.mins = merged
	mh.abunds = mergedAbunds
	return nil
}

// Count returns the number of shared hashes, along with the size of the union sample the estimate is made over.
// For bottom-k sketches the union is truncated to the num smallest values.
func (mh *KmerMinHash) Count(other *KmerMinHash) (common, union uint64, err error) {
	if err := mh.CheckCompatible(other); err != nil {
		return 0, 0, err
	}
	i, j := 0, 0
	for i < len(mh.mins) || j < len(other.mins) {
		if mh.num > 0 && union == uint64(mh.num) {
			break
		}
		switch {
		case j == len(other.mins) || (i < len(mh.mins) && mh.mins[i] < other.mins[j]):
			i++
		case i == len(mh.mins) || other.mins[j] < mh.mins[i]:
			j++
		default:
			common++
			i++
			j++
		}
		union++
	}
	return common, union, nil
}

// Intersection returns the number of hashes present in both sketches
func (mh *KmerMinHash) Intersection(other *KmerMinHash) (uint64, error) {
	if err := mh.CheckCompatible(other); err != nil {
		return 0, err
	}
	var common uint64
	i, j := 0, 0
	for i < len(mh.mins) && j < len(other.mins) {
		switch {
		case mh.mins[i] < other.mins[j]:
			i++
		case other.mins[j] < mh.mins[i]:
			j++
		default:
			common++
			i++
			j++
		}
	}
	return common, nil
}

// Similarity estimates the Jaccard similarity of the two k-mer sets, it is 0 if either sketch is empty
func (mh *KmerMinHash) Similarity(other *KmerMinHash) (float64, error) {
	common, union, err := mh.Count(other)
	if err != nil {
		return 0.0, err
	}
	if len(mh.mins) == 0 || len(other.mins) == 0 {
		return 0.0, nil
	}
	return float64(common) / float64(union), nil
}

// Containment estimates the fraction of the receiver's k-mers that are found in the other set
func (mh *KmerMinHash) Containment(other *KmerMinHash) (float64, error) {
	common, err := mh.Intersection(other)
	if err != nil {
		return 0.0, err
	}
	if len(mh.mins) == 0 {
		return 0.0, nil
	}
	return float64(common) / float64(len(mh.mins)), nil
}

// AngularSimilarity uses the abundances to give a cosine-based similarity, both sketches must track abundance
func (mh *KmerMinHash) AngularSimilarity(other *KmerMinHash) (float64, error) {
	if err := mh.CheckCompatible(other); err != nil {
		return 0.0, err
	}
	if mh.abunds == nil || other.abunds == nil {
		return 0.0, errors.Wrap(ErrIncompatibleSketch, "angular similarity needs abundances for both sketches")
	}
	if len(mh.mins) == 0 || len(other.mins) == 0 {
		return 0.0, nil
	}
	var prod, normA, normB float64
	for _, a := range mh.abunds {
		normA += float64(a) * float64(a)
	}
	for _, b := range other.abunds {
		normB += float64(b) * float64(b)
	}
	i, j := 0, 0
	for i < len(mh.mins) && j < len(other.mins) {
		switch {
		case mh.mins[i] < other.mins[j]:
			i++
		case other.mins[j] < mh.mins[i]:
			j++
		default:
			prod += float64(mh.abunds[i]) * float64(other.abunds[j])
			i++
			j++
		}
	}
	cos := math.Min(prod/(math.Sqrt(normA)*math.Sqrt(normB)), 1.0)
	return 1.0 - 2.0*math.Acos(cos)/math.Pi, nil
}

package pipeline

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/seqio"
	"github.com/will-rowe/decoct/src/signature"
)

// SketchFile builds the signatures for a single input file, according to the naming mode:
//
//	singleton  - one signature per record, named from the record header
//	merge      - a single unnamed partial signature, to be reduced with the other files
//	whole-file - one signature, named from the file (or the first record with NameFromFirst)
//
// Nothing is returned if the context is cancelled part way through the file.
func (Info *Info) SketchFile(ctx context.Context, file string) ([]*signature.Signature, error) {
	c := &Info.Compute
	reader, err := seqio.OpenSequences(file, c.InputIsProtein)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	template := Info.Template()
	var sigs []*signature.Signature
	sig := signature.FromTemplate(template)
	firstName := ""
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "%s: bad record after %d records", file, n)
		}
		if c.Singleton {
			sig = signature.FromTemplate(template)
			sig.Name = record.Header()
			sig.Filename = file
			sigs = append(sigs, sig)
		} else if n == 0 {
			firstName = record.Header()
		}
		if err := Info.addRecord(sig, record); err != nil {
			return nil, errors.Wrapf(err, "%s: record %q", file, record.ID)
		}
	}
	switch {
	case c.Singleton:
		return sigs, nil
	case c.Merge != "":
		sig.Filename = file
		return []*signature.Signature{sig}, nil
	}
	sig.Name = file
	sig.Filename = file
	if c.NameFromFirst && firstName != "" {
		sig.Name = firstName
	}
	return []*signature.Signature{sig}, nil
}

// addRecord adds a single sequence record to a signature
func (Info *Info) addRecord(sig *signature.Signature, record *seqio.Sequence) error {
	if Info.Compute.QualTrim > 0 {
		record.QualTrim(Info.Compute.QualTrim)
	}
	if Info.Compute.InputIsProtein {
		return sig.AddProtein(record.Seq)
	}
	return sig.AddSequence(record.Seq, Info.Compute.CheckSequence)
}

// MergeSignatures reduces the per-file partial signatures into the final merged signature, which takes the filename of the last input file
func (Info *Info) MergeSignatures(partials []*signature.Signature, lastFile string) (*signature.Signature, error) {
	merged := signature.FromTemplate(Info.Template())
	merged.Name = Info.Compute.Merge
	merged.Filename = lastFile
	for _, partial := range partials {
		if err := merged.Merge(partial); err != nil {
			return nil, errors.Wrapf(err, "could not merge %s", partial.Filename)
		}
	}
	return merged, nil
}

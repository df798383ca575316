// Package reporting writes the results of a search: the ranked table, a CSV file, the matched signatures and a plot
package reporting

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/will-rowe/decoct/src/index"
	"github.com/will-rowe/decoct/src/signature"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// nameWidth is the width of the match column of the report table
const nameWidth = 60

// csvHeader is the header line of the CSV output
var csvHeader = []string{"similarity", "name", "filename", "md5"}

// Report writes the ranked matches as a table, showing at most numResults rows (all of them if numResults is 0)
func Report(w io.Writer, matches []*index.Match, numResults int, bestOnly bool) error {
	shown := len(matches)
	if numResults > 0 && numResults < shown {
		shown = numResults
	}
	var err error
	printf := func(format string, args ...interface{}) {
		if err == nil {
			_, err = fmt.Fprintf(w, format, args...)
		}
	}
	if shown == len(matches) {
		printf("%d matches:\n", len(matches))
	} else {
		printf("%d matches; showing first %d:\n", len(matches), shown)
	}
	if len(matches) == 0 {
		return err
	}
	printf("similarity   match\n")
	printf("----------   -----\n")
	for _, match := range matches[:shown] {
		printf("%5.1f%%       %-*s\n", match.Score*100, nameWidth, truncate(match.Signature.DisplayName(), nameWidth))
	}
	if bestOnly {
		printf("\n** reporting only one match because --best-only was set\n")
	}
	return err
}

// truncate shortens a name to fit the table
func truncate(name string, width int) string {
	if len(name) <= width {
		return name
	}
	return name[:width-3] + "..."
}

// WriteCSV writes every match to a CSV file
func WriteCSV(w io.Writer, matches []*index.Match) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, match := range matches {
		record := []string{
			strconv.FormatFloat(match.Score, 'g', -1, 64),
			match.Signature.Name,
			match.Signature.Filename,
			match.Signature.Md5sum(),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile writes every match to a CSV file at path
func WriteCSVFile(path string, matches []*index.Match) error {
	fh, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "could not create CSV file")
	}
	if err := WriteCSV(fh, matches); err != nil {
		fh.Close()
		return errors.Wrapf(err, "could not write %s", path)
	}
	return fh.Close()
}

// SaveMatches writes the matched signatures to a signature file
func SaveMatches(path string, matches []*index.Match) error {
	sigs := make([]*signature.Signature, len(matches))
	for i, match := range matches {
		sigs[i] = match.Signature
	}
	return signature.SaveFile(path, sigs)
}

// Plot draws a bar chart of the scores of the top matches (all of them if numResults is 0) and saves it to path, the image format is taken from the extension
func Plot(path string, matches []*index.Match, numResults int, scoreLabel string) error {
	if len(matches) == 0 {
		return errors.New("no matches to plot")
	}
	if numResults > 0 && numResults < len(matches) {
		matches = matches[:numResults]
	}
	scores := make(plotter.Values, len(matches))
	names := make([]string, len(matches))
	for i, match := range matches {
		scores[i] = match.Score
		names[i] = truncate(match.Signature.DisplayName(), 20)
	}

	// this will clean up the names so that they can be read on the axis
	var replacer = strings.NewReplacer("\t", " ", "\n", " ")
	for i := range names {
		names[i] = replacer.Replace(names[i])
	}

	scorePlot, err := plot.New()
	if err != nil {
		return err
	}
	scorePlot.Title.Text = "search matches"
	scorePlot.Y.Label.Text = scoreLabel
	scorePlot.Y.Min = 0
	scorePlot.Y.Max = 1
	bars, err := plotter.NewBarChart(scores, vg.Points(20))
	if err != nil {
		return err
	}
	bars.LineStyle.Width = vg.Length(0)
	scorePlot.Add(bars)
	scorePlot.NominalX(names...)
	width := vg.Length(len(matches))*vg.Inch + 2*vg.Inch
	return scorePlot.Save(width, 6*vg.Inch, path)
}

package reporting

import (
	"fmt"
	"os"
	"path/filepath"
)

// Output file names.
const (
	FileReport   = "REPORT.md"
	FileMetrics  = "metrics.csv"
	FileSignals  = "signals.csv"
	FileExits    = "exits.csv"
	FileAnalysis = "analysis.csv"
	FileMarkers  = "markers.csv"
)

// File is a rendered report artifact.
type File struct {
	Name    string
	Content string
}

// WriteDir writes files into dir, creating it if needed.
func WriteDir(dir string, files []File) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, []byte(f.Content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

// Render produces every artifact for a report. bars, records and exits
// feed the data exports.
func Render(r *Report, in BuildInput) []File {
	return []File{
		{Name: FileReport, Content: RenderMarkdown(r)},
		{Name: FileMetrics, Content: RenderCSV(r.StrategyMetrics)},
		{Name: FileSignals, Content: RenderSignalsCSV(r.Signals)},
		{Name: FileExits, Content: RenderExitsCSV(in.Exits)},
		{Name: FileAnalysis, Content: RenderAnalysisCSV(in.Records)},
		{Name: FileMarkers, Content: RenderMarkersCSV(in.Bars, in.Signals, in.Exits)},
	}
}

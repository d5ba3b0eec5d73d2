// Package report renders dataset overview reports in JSON and HTML.
package report

import (
	"bytes"
	"encoding/json"
	"html/template"
	"os"
	"sort"
	"time"

	"github.com/facet-org/facet/pkg/filter"
	"github.com/facet-org/facet/pkg/schema"
	"github.com/facet-org/facet/pkg/stats"
	"github.com/facet-org/facet/pkg/store"
)

// -----------------------------
// Report Types
// -----------------------------

// ColumnReport describes one column: its declared type plus computed
// statistics and interestingness score.
type ColumnReport struct {
	Key      string             `json:"key"`
	Name     string             `json:"name"`
	Kind     schema.Kind        `json:"kind"`
	Optional bool               `json:"optional"`
	Lazy     bool               `json:"lazy"`
	Stats    *stats.ColumnStats `json:"stats,omitempty"`
	Score    float64            `json:"score"`
}

// DatasetReport is a point-in-time overview of a dataset: its shape, the
// per-column statistics, and the active filters. Columns are ordered by
// descending interestingness score.
type DatasetReport struct {
	Source      string         `json:"source,omitempty"`
	Generation  int64          `json:"generation"`
	Rows        int            `json:"rows"`
	Columns     []ColumnReport `json:"columns"`
	Filters     []filter.Spec  `json:"filters,omitempty"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Build assembles a DatasetReport from the store's current state. A nil
// scorer falls back to the default scorer.
func Build(s *store.Store, source string, scorer stats.Scorer) (DatasetReport, error) {
	if scorer == nil {
		scorer = stats.DefaultScorer
	}
	described := stats.Describe(s)

	columns := make([]ColumnReport, 0, len(s.Columns()))
	for _, col := range s.Columns() {
		cr := ColumnReport{
			Key:      col.Key,
			Name:     col.Name,
			Kind:     col.Kind(),
			Optional: col.Optional,
			Lazy:     col.Lazy(),
		}
		if st, ok := described[col.Key]; ok {
			cr.Stats = &st
			cr.Score = scorer.Score(col, st)
		}
		columns = append(columns, cr)
	}
	sort.SliceStable(columns, func(i, j int) bool {
		return columns[i].Score > columns[j].Score
	})

	var specs []filter.Spec
	for _, f := range s.Filters() {
		sp, err := filter.ToSpec(f)
		if err != nil {
			return DatasetReport{}, err
		}
		specs = append(specs, sp)
	}

	return DatasetReport{
		Source:      source,
		Generation:  s.Generation(),
		Rows:        s.Length(),
		Columns:     columns,
		Filters:     specs,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// -----------------------------
// Report Generator Interfaces
// -----------------------------

// ReportGenerator defines the methods for rendering reports.
type ReportGenerator interface {
	GenerateDatasetReport(rep DatasetReport) ([]byte, error)
	SaveReportToFile(rep DatasetReport, filePath string) error
}

// -----------------------------
// JSON Report Generator
// -----------------------------

// JSONReportGenerator generates JSON reports.
type JSONReportGenerator struct{}

// GenerateDatasetReport serializes the DatasetReport to JSON.
func (j *JSONReportGenerator) GenerateDatasetReport(rep DatasetReport) ([]byte, error) {
	return json.MarshalIndent(rep, "", "  ")
}

// SaveReportToFile saves the JSON report to a file.
func (j *JSONReportGenerator) SaveReportToFile(rep DatasetReport, filePath string) error {
	data, err := j.GenerateDatasetReport(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// ReportFromFilePath loads a previously saved JSON report.
func ReportFromFilePath(filePath string) (DatasetReport, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return DatasetReport{}, err
	}
	var rep DatasetReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return DatasetReport{}, err
	}
	return rep, nil
}

// -----------------------------
// HTML Report Generator
// -----------------------------

// HTMLReportGenerator generates HTML reports.
type HTMLReportGenerator struct{}

// HTML template for the report.
const htmlTemplate = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Dataset Report</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        table { width: 100%; border-collapse: collapse; margin-top: 20px; }
        th, td { border: 1px solid #ddd; padding: 8px; text-align: left; }
        th { background-color: #f4f4f4; }
        .flag-on { color: green; }
        .flag-off { color: #999; }
    </style>
</head>
<body>
    <h1>Dataset Report</h1>
    <p><strong>Source:</strong> {{.Source}}</p>
    <p><strong>Rows:</strong> {{.Rows}}</p>
    <p><strong>Generation:</strong> {{.Generation}}</p>

    <h2>Columns</h2>
    <table>
        <tr>
            <th>Key</th>
            <th>Kind</th>
            <th>Optional</th>
            <th>Lazy</th>
            <th>Count</th>
            <th>Nulls</th>
            <th>Min</th>
            <th>Max</th>
            <th>Mean</th>
            <th>Std Dev</th>
            <th>Score</th>
        </tr>
        {{range .Columns}}
        <tr>
            <td>{{.Key}}</td>
            <td>{{.Kind}}</td>
            <td>{{if .Optional}}yes{{else}}no{{end}}</td>
            <td>{{if .Lazy}}yes{{else}}no{{end}}</td>
            {{if .Stats}}
            <td>{{.Stats.Count}}</td>
            <td>{{.Stats.NullCount}}</td>
            <td>{{printf "%.4g" .Stats.Min}}</td>
            <td>{{printf "%.4g" .Stats.Max}}</td>
            <td>{{printf "%.4g" .Stats.Mean}}</td>
            <td>{{printf "%.4g" .Stats.StdDev}}</td>
            <td>{{printf "%.2f" .Score}}</td>
            {{else}}
            <td colspan="7">&mdash;</td>
            {{end}}
        </tr>
        {{end}}
    </table>

    <h2>Filters</h2>
    <table>
        <tr>
            <th>ID</th>
            <th>Kind</th>
            <th>Column</th>
            <th>Predicate</th>
            <th>Enabled</th>
            <th>Inverted</th>
        </tr>
        {{range .Filters}}
        <tr>
            <td>{{.ID}}</td>
            <td>{{.Kind}}</td>
            <td>{{.Column}}</td>
            <td>{{.Predicate}}</td>
            <td class="{{if .Enabled}}flag-on{{else}}flag-off{{end}}">
                {{if .Enabled}}enabled{{else}}disabled{{end}}
            </td>
            <td class="{{if .Inverted}}flag-on{{else}}flag-off{{end}}">
                {{if .Inverted}}inverted{{else}}normal{{end}}
            </td>
        </tr>
        {{else}}
        <tr><td colspan="6">No active filters</td></tr>
        {{end}}
    </table>

    <footer>
        <p>Generated on {{.GeneratedAt}}</p>
    </footer>
</body>
</html>
`

// GenerateDatasetReport renders the report as HTML.
func (h *HTMLReportGenerator) GenerateDatasetReport(rep DatasetReport) ([]byte, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rep); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SaveReportToFile saves the HTML report to a file.
func (h *HTMLReportGenerator) SaveReportToFile(rep DatasetReport, filePath string) error {
	data, err := h.GenerateDatasetReport(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}

// SaveReports saves both JSON and HTML renditions of the report.
func SaveReports(rep DatasetReport, jsonPath, htmlPath string) error {
	jsonGen := JSONReportGenerator{}
	htmlGen := HTMLReportGenerator{}

	if err := jsonGen.SaveReportToFile(rep, jsonPath); err != nil {
		return err
	}
	if err := htmlGen.SaveReportToFile(rep, htmlPath); err != nil {
		return err
	}
	return nil
}

// Package export renders scan results for download.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

// CSVFilename is the attachment name used for downloads.
const CSVFilename = "govt_jobs.csv"

// CSVContentType is the media type of WriteCSV output.
const CSVContentType = "text/csv; charset=utf-8"

// Header is the fixed CSV column order.
var Header = []string{"title", "link", "posted", "experience", "location", "source", "last_date"}

// WriteCSV writes the header and one row per record. Absent fields are empty cells.
func WriteCSV(w io.Writer, records []jobs.JobRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for i, r := range records {
		row := []string{
			r.Title,
			r.Link,
			jobs.Value(r.PostedDate),
			jobs.Value(r.Experience),
			jobs.Value(r.Location),
			r.Source,
			jobs.Value(r.LastDate),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// CSV returns the rendered document.
func CSV(records []jobs.JobRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

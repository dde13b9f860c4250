package export

import (
	"encoding/csv"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/govjob-scanner/internal/jobs"
)

func TestCSVColumnsAndAbsentFields(t *testing.T) {
	t.Parallel()

	records := []jobs.JobRecord{
		{
			Title:      "Data Analyst, Grade B",
			Link:       "https://x.gov/jobs/1",
			Source:     "X",
			PostedDate: jobs.Optional("01/07/2024"),
			LastDate:   jobs.Optional("15/08/2024"),
			Experience: jobs.Optional("2+ years"),
			Location:   jobs.Optional("Delhi, NCR"),
		},
		{Title: "Match in PDF: a.pdf", Link: "https://x.gov/a.pdf", Source: jobs.PDFSource},
	}

	raw, err := CSV(records)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []string{"title", "link", "posted", "experience", "location", "source", "last_date"}, rows[0])
	require.Equal(t, []string{"Data Analyst, Grade B", "https://x.gov/jobs/1", "01/07/2024", "2+ years", "Delhi, NCR", "X", "15/08/2024"}, rows[1])
	require.Equal(t, []string{"Match in PDF: a.pdf", "https://x.gov/a.pdf", "", "", "", "PDF", ""}, rows[2])
}

func TestCSVEmptyHasHeaderOnly(t *testing.T) {
	t.Parallel()

	raw, err := CSV(nil)
	require.NoError(t, err)
	require.Equal(t, "title,link,posted,experience,location,source,last_date\n", string(raw))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteCSVPropagatesWriterErrors(t *testing.T) {
	t.Parallel()

	err := WriteCSV(failingWriter{}, []jobs.JobRecord{{Title: "t"}})
	require.ErrorContains(t, err, "disk full")
}

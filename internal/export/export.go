// Package export renders jobs as audit CSV and JSON.
package export

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// Record is one exported job row.
type Record struct {
	JobID        string `json:"jobId"`
	Title        string `json:"title"`
	Client       string `json:"client"`
	Technician   string `json:"technician"`
	Status       string `json:"status"`
	Date         string `json:"date"`
	Address      string `json:"address"`
	Photos       int    `json:"photos"`
	EvidenceHash string `json:"evidenceHash"`
	SealedAt     string `json:"sealedAt"`
	Notes        string `json:"notes"`
}

var header = []string{
	"Job ID", "Title", "Client", "Technician", "Status", "Date",
	"Address", "Photos", "Evidence Hash", "Sealed At", "Notes",
}

func FromJob(j *domain.Job) Record {
	date := j.LastUpdated
	if j.ScheduledAt != nil {
		date = *j.ScheduledAt
	}
	r := Record{
		JobID:        j.ID,
		Title:        j.Title,
		Client:       j.Client,
		Technician:   j.Technician,
		Status:       j.Status.String(),
		Address:      j.Address,
		Photos:       len(j.Photos),
		EvidenceHash: j.EvidenceHash,
		Notes:        j.Notes,
	}
	if !date.IsZero() {
		r.Date = date.UTC().Format(time.DateOnly)
	}
	if j.SealedAt != nil {
		r.SealedAt = j.SealedAt.UTC().Format(time.RFC3339)
	}
	return r
}

func FromJobs(jobs []*domain.Job) []Record {
	out := make([]Record, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, FromJob(j))
	}
	return out
}

func (r Record) fields() []string {
	return []string{
		r.JobID, r.Title, r.Client, r.Technician, r.Status, r.Date,
		r.Address, strconv.Itoa(r.Photos), r.EvidenceHash, r.SealedAt, r.Notes,
	}
}

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func quote(s string) string {
	return `"` + strings.ReplaceAll(flatten.Replace(s), `"`, `""`) + `"`
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// WriteCSV writes a header and one line per record. Every field is quoted and
// line breaks inside values are flattened, so n records always take n+1 lines.
func WriteCSV(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, header); err != nil {
		return err
	}
	for _, r := range records {
		if err := writeRow(bw, r.fields()); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func WriteJSON(w io.Writer, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	b, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}

package export

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedJob() *domain.Job {
	sealed := time.Date(2026, 4, 2, 15, 4, 5, 0, time.FixedZone("X", 3600))
	sched := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return &domain.Job{
		ID:           "job-1",
		Title:        `Fix "main" valve`,
		Client:       "ACME, Ltd",
		Technician:   "Ana",
		Status:       domain.StatusSealed,
		Address:      "1 Long Rd",
		Notes:        "line one\nline two\r\nline three",
		ScheduledAt:  &sched,
		Photos:       []domain.Photo{{ID: "p1"}, {ID: "p2"}},
		EvidenceHash: strings.Repeat("ab", 32),
		SealedAt:     &sealed,
	}
}

func TestFromJob(t *testing.T) {
	r := FromJob(sealedJob())
	assert.Equal(t, "2026-04-01", r.Date)
	assert.Equal(t, "2026-04-02T14:04:05Z", r.SealedAt)
	assert.Equal(t, 2, r.Photos)
	assert.Equal(t, "sealed", r.Status)

	draft := &domain.Job{ID: "d", Status: domain.StatusDraft, LastUpdated: time.Date(2026, 1, 5, 23, 0, 0, 0, time.UTC)}
	r = FromJob(draft)
	assert.Equal(t, "2026-01-05", r.Date)
	assert.Empty(t, r.SealedAt)
}

func TestWriteCSV_OneLinePerRecord(t *testing.T) {
	jobs := []*domain.Job{sealedJob(), sealedJob(), {ID: "job-3", Status: domain.StatusPending}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, FromJobs(jobs)))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, len(jobs)+1)
	assert.Equal(t, `"Job ID","Title","Client","Technician","Status","Date","Address","Photos","Evidence Hash","Sealed At","Notes"`, lines[0])

	assert.Contains(t, lines[1], `"Fix ""main"" valve"`)
	assert.Contains(t, lines[1], `"ACME, Ltd"`)
	assert.Contains(t, lines[1], `"line one line two line three"`)

	hashRe := regexp.MustCompile(`"([a-f0-9]{64})"`)
	m := hashRe.FindStringSubmatch(lines[1])
	require.Len(t, m, 2)
	assert.Equal(t, strings.Repeat("ab", 32), m[1])

	assert.Equal(t, `"job-3","","","","pending","","","0","","",""`, lines[3])
}

func TestWriteCSV_EmptyHasHeaderOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestWriteJSON_Indented(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, FromJobs([]*domain.Job{sealedJob()})))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[\n  {\n    \"jobId\": \"job-1\""))

	var back []Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	require.Len(t, back, 1)
	assert.Equal(t, "line one\nline two\r\nline three", back[0].Notes)

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

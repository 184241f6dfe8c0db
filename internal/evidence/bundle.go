// Package evidence builds the canonical evidence bundle of a job, hashes it,
// decides whether a job may be sealed, and verifies existing seals. It is
// shared by the device and the backend and performs no I/O.
package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dmitrijs2005/fieldseal/internal/domain"
)

// BundleVersion is bumped whenever the canonical layout changes.
const BundleVersion = 1

var hashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ValidHash reports whether s is a lowercase 64-hex SHA-256 digest.
func ValidHash(s string) bool {
	return hashPattern.MatchString(s)
}

type BundleJob struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspaceId"`
	Title       string `json:"title"`
	Client      string `json:"client"`
	Technician  string `json:"technician"`
	Address     string `json:"address"`
	Notes       string `json:"notes"`
	WorkSummary string `json:"workSummary"`
	ScheduledAt string `json:"scheduledAt"`
}

// BundlePhoto carries coordinates as fixed six-decimal strings; canonical
// JSON has no floats.
type BundlePhoto struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	TakenAt     string `json:"takenAt"`
	Lat         string `json:"lat"`
	Lng         string `json:"lng"`
	ContentHash string `json:"contentHash"`
}

type BundleSignature struct {
	SignerName string `json:"signerName"`
	SignedAt   string `json:"signedAt"`
	ImageHash  string `json:"imageHash"`
}

// Bundle is the sealing input. It excludes sync bookkeeping: status,
// versions, local edit times and device file paths.
type Bundle struct {
	Version   int64           `json:"version"`
	Job       BundleJob       `json:"job"`
	Photos    []BundlePhoto   `json:"photos"`
	Signature BundleSignature `json:"signature"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// BuildBundle extracts the evidence of j. Photos are ordered by capture
// time, then id.
func BuildBundle(j *domain.Job) Bundle {
	b := Bundle{
		Version: BundleVersion,
		Job: BundleJob{
			ID:          j.ID,
			WorkspaceID: j.WorkspaceID,
			Title:       j.Title,
			Client:      j.Client,
			Technician:  j.Technician,
			Address:     j.Address,
			Notes:       j.Notes,
			WorkSummary: j.WorkSummary,
		},
		Photos: make([]BundlePhoto, 0, len(j.Photos)),
	}
	if j.ScheduledAt != nil {
		b.Job.ScheduledAt = formatTime(*j.ScheduledAt)
	}

	photos := make([]domain.Photo, len(j.Photos))
	copy(photos, j.Photos)
	sort.SliceStable(photos, func(a, c int) bool {
		if !photos[a].TakenAt.Equal(photos[c].TakenAt) {
			return photos[a].TakenAt.Before(photos[c].TakenAt)
		}
		return photos[a].ID < photos[c].ID
	})
	for _, p := range photos {
		bp := BundlePhoto{
			ID:          p.ID,
			Type:        string(p.Type),
			TakenAt:     formatTime(p.TakenAt),
			ContentHash: p.ContentHash,
		}
		if p.GPS != nil {
			bp.Lat = formatCoord(p.GPS.Lat)
			bp.Lng = formatCoord(p.GPS.Lng)
		}
		b.Photos = append(b.Photos, bp)
	}

	if j.Signature != nil {
		b.Signature = BundleSignature{
			SignerName: j.Signature.SignerName,
			SignedAt:   formatTime(j.Signature.SignedAt),
			ImageHash:  j.Signature.ImageHash,
		}
	}
	return b
}

func (b Bundle) canonicalMap() map[string]any {
	photos := make([]any, 0, len(b.Photos))
	for _, p := range b.Photos {
		photos = append(photos, map[string]any{
			"id":          p.ID,
			"type":        p.Type,
			"takenAt":     p.TakenAt,
			"lat":         p.Lat,
			"lng":         p.Lng,
			"contentHash": p.ContentHash,
		})
	}
	return map[string]any{
		"version": b.Version,
		"job": map[string]any{
			"id":          b.Job.ID,
			"workspaceId": b.Job.WorkspaceID,
			"title":       b.Job.Title,
			"client":      b.Job.Client,
			"technician":  b.Job.Technician,
			"address":     b.Job.Address,
			"notes":       b.Job.Notes,
			"workSummary": b.Job.WorkSummary,
			"scheduledAt": b.Job.ScheduledAt,
		},
		"photos": photos,
		"signature": map[string]any{
			"signerName": b.Signature.SignerName,
			"signedAt":   b.Signature.SignedAt,
			"imageHash":  b.Signature.ImageHash,
		},
	}
}

// Canonical returns the stable byte form of the bundle.
func (b Bundle) Canonical() ([]byte, error) {
	return MarshalCanonical(b.canonicalMap())
}

// HashBytes returns the lowercase hex SHA-256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Snapshot builds, canonicalises and hashes the bundle of j.
func Snapshot(j *domain.Job) (snapshot []byte, hash string, err error) {
	snapshot, err = BuildBundle(j).Canonical()
	if err != nil {
		return nil, "", fmt.Errorf("canonicalize bundle: %w", err)
	}
	return snapshot, HashBytes(snapshot), nil
}

// DecodeBundle parses a stored snapshot.
func DecodeBundle(snapshot []byte) (Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(snapshot, &b); err != nil {
		return Bundle{}, fmt.Errorf("decode bundle: %w", err)
	}
	return b, nil
}

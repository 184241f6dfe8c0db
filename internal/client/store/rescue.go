package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/fieldseal/internal/client/models"
	"github.com/dmitrijs2005/fieldseal/internal/common"
	"github.com/dmitrijs2005/fieldseal/internal/filex"
)

const rescueFile = "fieldseal-rescue.json.gz"

func (s *Store) rescuePath() string {
	return filepath.Join(s.opts.RescueDir, rescueFile)
}

// ExportRescue collects everything that cannot be fetched again from the
// backend: queued and failed actions, jobs, unsynced contacts, drafts,
// unresolved conflicts and seals. Sections whose table the stored layout
// predates are left empty.
func (s *Store) ExportRescue(ctx context.Context) (*models.RescuePayload, error) {
	tables, err := s.tables(ctx)
	if err != nil {
		return nil, err
	}
	r := s.Repos()
	p := &models.RescuePayload{
		Format:        models.RescueFormat,
		SchemaVersion: s.opts.schemaVersion,
		CreatedAt:     s.opts.Now().UTC(),
	}
	sections := []struct {
		table  string
		export func() error
	}{
		{"queue_actions", func() (err error) { p.Queue, err = r.Queue.List(ctx); return }},
		{"failed_actions", func() (err error) { p.Failed, err = r.Failed.List(ctx, true); return }},
		{"jobs", func() (err error) { p.Jobs, err = r.Jobs.ListAll(ctx); return }},
		{"contacts", func() (err error) { p.Contacts, err = r.Contacts.ListUnsynced(ctx); return }},
		{"drafts", func() (err error) { p.Drafts, err = r.Drafts.List(ctx); return }},
		{"conflicts", func() (err error) { p.Conflicts, err = r.Conflicts.ListUnresolved(ctx); return }},
		{"seals", func() (err error) { p.Seals, err = r.Seals.List(ctx); return }},
		{"metadata", func() (err error) { p.DeviceID, err = r.Metadata.DeviceID(ctx); return }},
	}
	for _, sec := range sections {
		if !tables[sec.table] {
			s.log.Warn(ctx, "rescue export skips table missing from stored layout", "table", sec.table)
			continue
		}
		if err := sec.export(); err != nil {
			return nil, fmt.Errorf("export %s: %w", sec.table, err)
		}
	}
	return p, nil
}

func (s *Store) tables(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

// ImportRescue writes a rescue payload into a freshly migrated store in one
// transaction. Queue order is preserved.
func (s *Store) ImportRescue(ctx context.Context, p *models.RescuePayload) error {
	return s.WithTx(ctx, func(ctx context.Context, r *Repos) error {
		if p.DeviceID != "" {
			if err := r.Metadata.SetDeviceID(ctx, p.DeviceID); err != nil {
				return err
			}
		}
		for _, j := range p.Jobs {
			if err := r.Jobs.Restore(ctx, j); err != nil {
				return err
			}
		}
		for _, c := range p.Contacts {
			if err := r.Contacts.Save(ctx, c); err != nil {
				return err
			}
		}
		for _, d := range p.Drafts {
			if err := r.Drafts.Save(ctx, d); err != nil {
				return err
			}
		}
		for _, c := range p.Conflicts {
			if _, err := r.Conflicts.Insert(ctx, c); err != nil {
				return err
			}
		}
		for _, a := range p.Queue {
			if err := r.Queue.Insert(ctx, a); err != nil {
				return err
			}
		}
		for _, f := range p.Failed {
			if _, err := r.Failed.Insert(ctx, f); err != nil {
				return err
			}
		}
		for _, seal := range p.Seals {
			if err := r.Seals.Insert(ctx, seal); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) writeRescue(p *models.RescuePayload) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(p); err != nil {
		return fmt.Errorf("encode rescue payload: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress rescue payload: %w", err)
	}
	if _, err := filex.EnsureDir(s.opts.RescueDir); err != nil {
		return err
	}
	data := buf.Bytes()
	sum := sha256.Sum256(data)
	path := s.rescuePath()
	// Sidecar first: a payload without a matching sidecar is never trusted.
	if err := filex.WriteAtomic(path+".sha256", []byte(hex.EncodeToString(sum[:])), 0o600); err != nil {
		return err
	}
	return filex.WriteAtomic(path, data, 0o600)
}

func (s *Store) readRescue() (*models.RescuePayload, error) {
	path := s.rescuePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rescue payload: %w", err)
	}
	want, err := os.ReadFile(path + ".sha256")
	if err != nil {
		return nil, s.rejectRescue(fmt.Errorf("read rescue checksum: %w", err))
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != strings.TrimSpace(string(want)) {
		return nil, s.rejectRescue(errors.New("rescue payload checksum mismatch"))
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, s.rejectRescue(err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, s.rejectRescue(err)
	}
	var p models.RescuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, s.rejectRescue(err)
	}
	if p.Format != models.RescueFormat {
		return nil, s.rejectRescue(fmt.Errorf("unsupported rescue format %d", p.Format))
	}
	return &p, nil
}

// rejectRescue moves an unreadable payload aside so it is not retried on
// every start, and reports corruption.
func (s *Store) rejectRescue(cause error) error {
	path := s.rescuePath()
	_ = os.Rename(path, path+".rejected")
	_ = os.Remove(path + ".sha256")
	return fmt.Errorf("%w: %v", common.ErrSchemaCorruption, cause)
}

func (s *Store) removeRescue() error {
	path := s.rescuePath()
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(path + ".sha256"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

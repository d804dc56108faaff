package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Table is a model's metadata/ prefix, read as newline-delimited JSON
// documents. It exposes an eager view (Rows, everything materialized
// at once) and a lazy view (Scan, one row fetched at a time).
type Table struct {
	model *Model
}

// Rows materializes every row under metadata/ into memory, fetching
// objects concurrently (order of the returned rows is not significant:
// a table is an unordered set of rows, unlike an envelope's payloads).
func (t *Table) Rows(ctx context.Context) ([]map[string]interface{}, error) {
	keys, err := t.listKeys(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]map[string]interface{}, len(keys))
	errs := make([]error, len(keys))

	var wg sync.WaitGroup
	for i, key := range keys {
		wg.Add(1)
		go func(i int, key string) {
			defer wg.Done()
			data, err := t.model.store.Get(ctx, t.model.Name, key)
			if err != nil {
				errs[i] = fmt.Errorf("model: read table object %q: %w", key, err)
				return
			}
			rows, err := parseNDJSON(data)
			if err != nil {
				errs[i] = fmt.Errorf("model: parse table object %q: %w", key, err)
				return
			}
			results[i] = rows
		}(i, key)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var rows []map[string]interface{}
	for _, r := range results {
		rows = append(rows, r...)
	}
	return rows, nil
}

// Scan opens a lazy, deferred-fetch view: each object under metadata/
// is only downloaded once the scanner reaches it.
func (t *Table) Scan(ctx context.Context) (*TableScanner, error) {
	keys, err := t.listKeys(ctx)
	if err != nil {
		return nil, err
	}
	return &TableScanner{model: t.model, keys: keys}, nil
}

// listKeys checks the bucket exists and is non-empty, returning
// ErrTableNotFound / ErrTableEmpty per spec.
func (t *Table) listKeys(ctx context.Context) ([]string, error) {
	exists, err := t.model.store.BucketExists(ctx, t.model.Name)
	if err != nil {
		return nil, fmt.Errorf("model: check table %q exists: %w", t.model.Name, err)
	}
	if !exists {
		return nil, ErrTableNotFound
	}

	keys, err := t.model.store.List(ctx, t.model.Name, metadataPrefix)
	if err != nil {
		return nil, fmt.Errorf("model: list table %q: %w", t.model.Name, err)
	}
	if len(keys) == 0 {
		return nil, ErrTableEmpty
	}
	return keys, nil
}

// TableScanner is a lazy, forward-only iterator over a Table's rows.
type TableScanner struct {
	model *Model
	keys  []string

	objIdx int
	rows   []map[string]interface{}
	rowIdx int
}

// Next returns the next row, or ok=false once every object has been
// exhausted. A non-nil error aborts the scan.
func (s *TableScanner) Next(ctx context.Context) (row map[string]interface{}, ok bool, err error) {
	for s.rowIdx >= len(s.rows) {
		if s.objIdx >= len(s.keys) {
			return nil, false, nil
		}
		key := s.keys[s.objIdx]
		s.objIdx++

		data, err := s.model.store.Get(ctx, s.model.Name, key)
		if err != nil {
			return nil, false, fmt.Errorf("model: read table object %q: %w", key, err)
		}
		rows, err := parseNDJSON(data)
		if err != nil {
			return nil, false, fmt.Errorf("model: parse table object %q: %w", key, err)
		}
		s.rows = rows
		s.rowIdx = 0
	}

	row = s.rows[s.rowIdx]
	s.rowIdx++
	return row, true, nil
}

// parseNDJSON splits data on newlines and decodes each non-blank line
// as one JSON object.
func parseNDJSON(data []byte) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var row map[string]interface{}
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Package source loads raw event records from a directory tree.
//
// The layout mirrors the upstream export: one JSON document per event at
// <dir>/<kind>/<n>.json, where n is a number giving discovery order and
// each document embeds the record id it belongs to. The loader only
// deserializes; validation happens in the parser.
package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/pipeline"
)

// document is the on-disk shape of one event file.
type document struct {
	ID string `json:"id"`
	event.Raw
}

// Load reads every kind's event files under dir and returns them in
// discovery order (ascending numeric filename per kind).
//
// A kind directory that does not exist yields an empty slice: an absent
// table is valid input, not an error. Files that are not .json are skipped.
func Load(dir string) (pipeline.Input, error) {
	input := make(pipeline.Input, len(event.Kinds))
	for _, kind := range event.Kinds {
		records, err := loadKind(filepath.Join(dir, string(kind)))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		input[kind] = records
	}
	return input, nil
}

func loadKind(dir string) ([]pipeline.SourcedRecord, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Slice(names, func(i, j int) bool {
		ni, iok := fileNumber(names[i])
		nj, jok := fileNumber(names[j])
		if iok && jok && ni != nj {
			return ni < nj
		}
		return names[i] < names[j]
	})

	records := make([]pipeline.SourcedRecord, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		var doc document
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		records = append(records, pipeline.SourcedRecord{RecordID: doc.ID, Raw: doc.Raw})
	}
	return records, nil
}

func fileNumber(name string) (int64, bool) {
	base := strings.TrimSuffix(name, ".json")
	n, err := strconv.ParseInt(base, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

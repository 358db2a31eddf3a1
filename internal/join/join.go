// Package join builds the denormalized view across the three reconstructed
// tables.
//
// Accounts anchor the join: every account record produces exactly one row,
// and card/savings records attach when they share the account's join key.
// A key present only in cards or savings produces no row - accounts is the
// root entity - but the stranded record is reported in Unmatched instead of
// being silently dropped.
package join

import (
	"sort"
	"strconv"

	"github.com/roach88/ledgerfold/internal/event"
	"github.com/roach88/ledgerfold/internal/relation"
	"github.com/roach88/ledgerfold/internal/state"
)

// Row is one denormalized joined row. Card and Savings are nil when no
// matching record exists.
type Row struct {
	Key     relation.JoinKey
	Account *state.Record
	Card    *state.Record
	Savings *state.Record
}

// Unmatched identifies a card or savings record whose join key has no
// account.
type Unmatched struct {
	Entity   event.Kind       `json:"entity"`
	RecordID string           `json:"record_id"`
	Key      relation.JoinKey `json:"key"`
}

// Result is the joined view plus its diagnostics.
type Result struct {
	Rows      []Row
	Unmatched []Unmatched
	Errors    []error // per-record resolver failures
}

// Build left-joins the three tables on their resolved join keys.
//
// Rows come out in ascending numeric key order (the accounts table's
// natural order). A resolver failure fails only that record's join attempt
// and is accumulated in Result.Errors.
func Build(accounts, cards, savings *state.Table, r relation.Resolver) Result {
	var res Result

	cardsByKey := indexByKey(cards, r, &res)
	savingsByKey := indexByKey(savings, r, &res)

	accountKeys := make(map[relation.JoinKey]bool)
	for _, id := range accounts.IDs() {
		rec, _ := accounts.Get(id)
		key, err := r.Resolve(accounts.Kind, id)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		accountKeys[key] = true
		res.Rows = append(res.Rows, Row{
			Key:     key,
			Account: rec,
			Card:    cardsByKey[key],
			Savings: savingsByKey[key],
		})
	}

	sort.SliceStable(res.Rows, func(i, j int) bool {
		return keyLess(res.Rows[i].Key, res.Rows[j].Key)
	})

	for key, rec := range cardsByKey {
		if !accountKeys[key] {
			res.Unmatched = append(res.Unmatched, Unmatched{Entity: cards.Kind, RecordID: rec.ID, Key: key})
		}
	}
	for key, rec := range savingsByKey {
		if !accountKeys[key] {
			res.Unmatched = append(res.Unmatched, Unmatched{Entity: savings.Kind, RecordID: rec.ID, Key: key})
		}
	}
	sort.Slice(res.Unmatched, func(i, j int) bool {
		if res.Unmatched[i].Entity != res.Unmatched[j].Entity {
			return res.Unmatched[i].Entity < res.Unmatched[j].Entity
		}
		return res.Unmatched[i].RecordID < res.Unmatched[j].RecordID
	})

	return res
}

// indexByKey maps a table's records by resolved join key. At most one
// record per kind maps to a given key; the mapping is a pure function of
// the id string.
func indexByKey(t *state.Table, r relation.Resolver, res *Result) map[relation.JoinKey]*state.Record {
	byKey := make(map[relation.JoinKey]*state.Record, t.Len())
	for _, id := range t.IDs() {
		rec, _ := t.Get(id)
		key, err := r.Resolve(t.Kind, id)
		if err != nil {
			res.Errors = append(res.Errors, err)
			continue
		}
		byKey[key] = rec
	}
	return byKey
}

func keyLess(a, b relation.JoinKey) bool {
	na, aerr := strconv.ParseInt(string(a), 10, 64)
	nb, berr := strconv.ParseInt(string(b), 10, 64)
	if aerr == nil && berr == nil && na != nb {
		return na < nb
	}
	return a < b
}

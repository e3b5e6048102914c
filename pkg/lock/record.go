package lock

import (
	"math"
	"sort"
	"time"
)

// Record is the JSON document stored under a lock key.
//
// LockID and ExpiresAt describe the primary holder and the latest expiry of
// all holders. Holders carries one expiry per holder so that several shared
// holders can coexist in one record. Records written without Holders are
// read as a single holder LockID expiring at ExpiresAt.
type Record struct {
	LockID    string             `json:"lock_id"`
	ExpiresAt float64            `json:"expires_at"`
	Shared    bool               `json:"shared"`
	Holders   map[string]float64 `json:"holders,omitempty"`
}

func newRecord(holderID string, expiresAt time.Time, shared bool) *Record {
	exp := unixSeconds(expiresAt)
	return &Record{
		LockID:    holderID,
		ExpiresAt: exp,
		Shared:    shared,
		Holders:   map[string]float64{holderID: exp},
	}
}

// Live reports whether at least one holder has not expired at now.
func (r *Record) Live(now time.Time) bool {
	if r == nil {
		return false
	}
	r.normalize()
	ts := unixSeconds(now)
	for _, exp := range r.Holders {
		if exp > ts {
			return true
		}
	}
	return false
}

// HeldBy reports whether holderID holds a live entry at now.
func (r *Record) HeldBy(holderID string, now time.Time) bool {
	if r == nil {
		return false
	}
	r.normalize()
	exp, ok := r.Holders[holderID]
	return ok && exp > unixSeconds(now)
}

// prune drops expired holders and recomputes the summary fields.
func (r *Record) prune(now time.Time) {
	r.normalize()
	ts := unixSeconds(now)
	for id, exp := range r.Holders {
		if exp <= ts {
			delete(r.Holders, id)
		}
	}
	r.summarize()
}

func (r *Record) withHolder(holderID string, expiresAt time.Time) {
	r.normalize()
	r.Holders[holderID] = unixSeconds(expiresAt)
	if r.LockID == "" {
		r.LockID = holderID
	}
	r.summarize()
}

func (r *Record) withoutHolder(holderID string) {
	r.normalize()
	delete(r.Holders, holderID)
	r.summarize()
}

func (r *Record) normalize() {
	if r.Holders == nil {
		r.Holders = map[string]float64{}
		if r.LockID != "" {
			r.Holders[r.LockID] = r.ExpiresAt
		}
	}
}

func (r *Record) summarize() {
	if len(r.Holders) == 0 {
		r.LockID = ""
		r.ExpiresAt = 0
		return
	}
	if _, ok := r.Holders[r.LockID]; !ok {
		ids := make([]string, 0, len(r.Holders))
		for id := range r.Holders {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		r.LockID = ids[0]
	}
	r.ExpiresAt = 0
	for _, exp := range r.Holders {
		r.ExpiresAt = math.Max(r.ExpiresAt, exp)
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package selection

import "sync"

// FrequencyCapper limits how often one creative is served to the same
// session. A cap of zero disables capping.
type FrequencyCapper struct {
	mu     sync.Mutex
	counts map[string]int
	cap    int
}

// NewFrequencyCapper creates a capper with the given per-session limit.
func NewFrequencyCapper(cap int) *FrequencyCapper {
	return &FrequencyCapper{
		counts: make(map[string]int),
		cap:    cap,
	}
}

func key(sessionID, creativeID string) string {
	return sessionID + ":" + creativeID
}

// Allowed reports whether the creative may still be served to the session.
func (f *FrequencyCapper) Allowed(sessionID, creativeID string) bool {
	if f.cap <= 0 {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key(sessionID, creativeID)] < f.cap
}

// RecordServe increments the session counter for a creative.
func (f *FrequencyCapper) RecordServe(sessionID, creativeID string) {
	if f.cap <= 0 {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key(sessionID, creativeID)]++
}

// ResetSession clears all counters for a session.
func (f *FrequencyCapper) ResetSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.counts {
		if len(k) > len(sessionID) && k[:len(sessionID)+1] == sessionID+":" {
			delete(f.counts, k)
		}
	}
}

package trace

import "sort"

// LockStats aggregates contention figures for one lock.
type LockStats struct {
	Lock ID
	Name string

	// Hits counts every acquisition, including recursive re-acquisition.
	Hits int
	// Acquires counts outermost acquisitions only.
	Acquires int

	TotalWait float64 // all hits
	AvgWait   float64 // per outermost acquisition
	MaxWait   float64

	TotalHold float64 // outermost acquisitions that were released
	AvgHold   float64
	MaxHold   float64

	Unterminated int
}

// ComputeStats summarizes wait and hold times per lock, sorted by total
// wait time, largest first. Locks that were never acquired are omitted.
func ComputeStats(doc *Document) []LockStats {
	if doc == nil {
		return nil
	}

	byLock := make(map[ID]*LockStats)
	for i := range doc.Threads {
		for _, s := range doc.Spans(i) {
			st, ok := byLock[s.Lock]
			if !ok {
				st = &LockStats{Lock: s.Lock, Name: doc.Locks[s.Lock].Name()}
				byLock[s.Lock] = st
			}

			st.Hits++
			wait := s.Wait()
			st.TotalWait += wait
			if wait > st.MaxWait {
				st.MaxWait = wait
			}

			if s.Depth > 0 {
				continue
			}
			st.Acquires++
			if s.Unterminated {
				st.Unterminated++
				continue
			}
			hold := s.Hold()
			st.TotalHold += hold
			if hold > st.MaxHold {
				st.MaxHold = hold
			}
		}
	}

	out := make([]LockStats, 0, len(byLock))
	for _, id := range doc.LockOrder {
		st, ok := byLock[id]
		if !ok {
			continue
		}
		if st.Acquires > 0 {
			st.AvgWait = st.TotalWait / float64(st.Acquires)
			if released := st.Acquires - st.Unterminated; released > 0 {
				st.AvgHold = st.TotalHold / float64(released)
			}
		}
		out = append(out, *st)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalWait > out[j].TotalWait
	})
	return out
}

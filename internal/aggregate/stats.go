package aggregate

import (
	"sort"
	"time"

	"zarigaas/internal/domain/entity"
)

// Dashboard computes the operator statistics. TotalPitches is the sum of
// the stored per-product counters; PitchDocuments counts pitch records.
func Dashboard(products []entity.Product, pitches []entity.Pitch, messages []entity.Message, now time.Time) entity.DashboardStats {
	stats := entity.DashboardStats{
		TotalProducts:  len(products),
		PitchDocuments: len(pitches),
		ComputedAt:     now,
	}
	for _, p := range products {
		stats.TotalPitches += p.PitchCount
		if p.Availability() == entity.OutOfStock {
			stats.OutOfStock++
		}
	}

	breakdown := PitchBreakdown(pitches)
	stats.PendingEnquiries = breakdown[entity.PitchPending]
	stats.ApprovedPitches = breakdown[entity.PitchApproved]
	stats.RejectedPitches = breakdown[entity.PitchRejected]

	for _, m := range messages {
		if !m.Read {
			stats.UnreadMessages++
		}
	}
	stats.CounterDrift = CounterDrift(products, pitches)
	return stats
}

func PitchBreakdown(pitches []entity.Pitch) map[entity.PitchStatus]int {
	out := map[entity.PitchStatus]int{
		entity.PitchPending:  0,
		entity.PitchApproved: 0,
		entity.PitchRejected: 0,
	}
	for _, p := range pitches {
		out[p.Status]++
	}
	return out
}

// FilterPitches keeps pitches with the given status; an empty status keeps all.
func FilterPitches(pitches []entity.Pitch, status entity.PitchStatus) []entity.Pitch {
	out := []entity.Pitch{}
	for _, p := range pitches {
		if status == "" || p.Status == status {
			out = append(out, p)
		}
	}
	return out
}

// PitchesFor keeps the pitches of one product, preserving order.
func PitchesFor(pitches []entity.Pitch, productID string) []entity.Pitch {
	out := []entity.Pitch{}
	for _, p := range pitches {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	return out
}

// CounterDrift lists products whose stored pitch counter disagrees with
// the number of pitch documents that reference them.
func CounterDrift(products []entity.Product, pitches []entity.Pitch) []entity.DriftEntry {
	counted := make(map[string]int, len(products))
	for _, p := range pitches {
		counted[p.ProductID]++
	}
	var drift []entity.DriftEntry
	for _, p := range products {
		if n := counted[p.ID]; n != p.PitchCount {
			drift = append(drift, entity.DriftEntry{
				ProductID:    p.ID,
				ProductName:  p.Name,
				StoredCount:  p.PitchCount,
				CountedCount: n,
			})
		}
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].ProductID < drift[j].ProductID })
	return drift
}

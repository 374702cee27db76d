package conflict

import "github.com/danielpatrickdp/moodengine/internal/mood"

// #region transitions
// transitions is the fixed escalation/de-escalation graph. Identity moves are
// always legal and are not listed. Explosive cannot be entered from none.
var transitions = map[mood.ConflictState][]mood.ConflictState{
	mood.ConflictNone:              {mood.ConflictPassiveAggressive, mood.ConflictCold, mood.ConflictVulnerable},
	mood.ConflictPassiveAggressive: {mood.ConflictNone, mood.ConflictCold, mood.ConflictVulnerable},
	mood.ConflictCold:              {mood.ConflictNone, mood.ConflictPassiveAggressive, mood.ConflictExplosive},
	mood.ConflictVulnerable:        {mood.ConflictNone, mood.ConflictCold, mood.ConflictExplosive},
	mood.ConflictExplosive:         {mood.ConflictCold, mood.ConflictVulnerable},
}

// CanTransition reports whether from -> to is a legal single step.
func CanTransition(from, to mood.ConflictState) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// Targets lists the kinds reachable from c in one step, excluding c itself.
func Targets(c mood.ConflictState) []mood.ConflictState {
	out := make([]mood.ConflictState, len(transitions[c]))
	copy(out, transitions[c])
	return out
}

// #endregion transitions

// #region path-search
// intermediateStep picks a legal first move from -> ... -> to when the direct
// edge is missing. It walks the severity order from `from` toward `to` for a
// kind with edges on both sides; failing that it takes the first hop of a
// shortest graph path, considering only hops that move in the same direction
// as `to`. Ties go to the hop closest in severity to `from`, then the less
// severe one. Empty when no hop qualifies.
func intermediateStep(from, to mood.ConflictState) mood.ConflictState {
	fs, ts := from.Severity(), to.Severity()
	dir := 1
	if ts < fs {
		dir = -1
	}
	for i := fs + dir; i != ts; i += dir {
		cand := mood.SeverityOrder[i]
		if CanTransition(from, cand) && CanTransition(cand, to) {
			return cand
		}
	}

	best := mood.ConflictState("")
	bestDist := -1
	for _, hop := range transitions[from] {
		if (hop.Severity()-fs)*dir <= 0 {
			continue
		}
		d := distance(hop, to)
		if d < 0 {
			continue
		}
		if bestDist < 0 || d < bestDist || (d == bestDist && closer(from, hop, best)) {
			best, bestDist = hop, d
		}
	}
	return best
}

// closer reports whether a sits nearer to from than b in severity.
func closer(from, a, b mood.ConflictState) bool {
	da, db := abs(a.Severity()-from.Severity()), abs(b.Severity()-from.Severity())
	if da != db {
		return da < db
	}
	return a.Severity() < b.Severity()
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// distance is the BFS hop count from a to b, or -1 when unreachable.
func distance(a, b mood.ConflictState) int {
	if a == b {
		return 0
	}
	seen := map[mood.ConflictState]bool{a: true}
	frontier := []mood.ConflictState{a}
	for d := 1; len(frontier) > 0; d++ {
		var next []mood.ConflictState
		for _, n := range frontier {
			for _, t := range transitions[n] {
				if t == b {
					return d
				}
				if !seen[t] {
					seen[t] = true
					next = append(next, t)
				}
			}
		}
		frontier = next
	}
	return -1
}

// #endregion path-search

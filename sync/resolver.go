package sync

import (
	"fmt"
	"strings"
	"time"

	"gtasksync/store"
)

// Strategy defines how diverged versions of one logical task are reconciled.
type Strategy string

const (
	LocalWins  Strategy = "local_wins"  // Local version overwrites the others
	RemoteWins Strategy = "remote_wins" // Remote/Google version overwrites Local
	LatestWins Strategy = "latest_wins" // Greatest modified_at wins field by field
	MergeBoth  Strategy = "merge"       // LatestWins plus concatenated text fields
)

// ParseStrategy converts a config value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", LatestWins:
		return LatestWins, nil
	case LocalWins:
		return LocalWins, nil
	case RemoteWins:
		return RemoteWins, nil
	case MergeBoth:
		return MergeBoth, nil
	default:
		return "", &store.ValidationError{Field: "conflict_strategy", Message: fmt.Sprintf("unknown strategy %q (valid: local_wins, remote_wins, latest_wins, merge)", s)}
	}
}

// Origin names where a task version was observed. It doubles as the
// tie-break order: Local beats Remote beats Google on equal modified_at.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
	OriginGoogle
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	case OriginGoogle:
		return "google"
	}
	return "unknown"
}

// Version is one observed copy of a logical task.
type Version struct {
	Origin Origin
	Task   store.Task
}

// SideEffect tells the engine which store must be patched to converge on the
// canonical task.
type SideEffect int

const (
	PatchLocal SideEffect = iota
	PatchRemote
	PatchGoogle
)

// Resolution is the resolver's verdict for one diverged task.
type Resolution struct {
	Task    store.Task
	Effects []SideEffect
}

// Resolver reconciles diverged versions of one logical task. It is pure:
// it reads the versions it is given and never touches a store.
type Resolver struct {
	strategy Strategy
}

// NewResolver builds a resolver for the given strategy.
func NewResolver(strategy Strategy) *Resolver {
	return &Resolver{strategy: strategy}
}

// Strategy returns the configured strategy.
func (r *Resolver) Strategy() Strategy {
	return r.strategy
}

// Resolve picks the canonical task from two or three versions of one logical
// task and lists the stores that must be patched to match it. versions must
// be non-empty; a single version resolves to itself with the other origins
// patched.
func (r *Resolver) Resolve(versions []Version) (Resolution, error) {
	if len(versions) == 0 {
		return Resolution{}, &store.ValidationError{Field: "versions", Message: "resolve requires at least one version"}
	}

	var winner store.Task
	switch r.strategy {
	case LocalWins:
		winner = pickOrigin(versions, OriginLocal).Task
	case RemoteWins:
		winner = pickOrigin(versions, OriginRemote).Task
	case LatestWins:
		winner = r.latest(versions, false)
	case MergeBoth:
		winner = r.latest(versions, true)
	default:
		return Resolution{}, &store.ValidationError{Field: "conflict_strategy", Message: fmt.Sprintf("unknown strategy %q", r.strategy)}
	}

	// Identifiers never cross stores: the Local id and list membership stick
	// regardless of which version won the content.
	if local := findOrigin(versions, OriginLocal); local != nil {
		winner.ID = local.Task.ID
		winner.TasklistID = local.Task.TasklistID
		winner.ListTitle = local.Task.ListTitle
		winner.Position = local.Task.Position
		if !local.Task.CreatedAt.IsZero() {
			winner.CreatedAt = local.Task.CreatedAt
		}
	}

	res := Resolution{Task: winner}
	for _, v := range versions {
		if !sameContent(v.Task, winner) {
			res.Effects = append(res.Effects, effectFor(v.Origin))
		}
	}
	return res, nil
}

// latest implements the timestamp-driven reconciliation. When merge is set,
// divergent description/notes are concatenated instead of overwritten.
func (r *Resolver) latest(versions []Version, merge bool) store.Task {
	base := newestVersion(versions)
	winner := base.Task

	// A deletion wins only if strictly newer than every other version.
	if winner.Status == store.StatusDeleted {
		for _, v := range versions {
			if v.Origin == base.Origin {
				continue
			}
			if !v.Task.ModifiedAt.Before(winner.ModifiedAt) {
				alt := newestLiving(versions)
				if alt != nil {
					winner = alt.Task
					base = *alt
				}
				break
			}
		}
	}

	if winner.Status != store.StatusDeleted {
		// Promote the more advanced status among living versions.
		for _, v := range versions {
			if v.Task.Status == store.StatusDeleted {
				continue
			}
			if v.Task.Status.Rank() > winner.Status.Rank() {
				winner.Status = v.Task.Status
				if v.Task.Status == store.StatusCompleted {
					winner.CompletedAt = v.Task.CompletedAt
				}
			}
		}
		if winner.Status != store.StatusCompleted {
			winner.CompletedAt = nil
		} else if winner.CompletedAt == nil {
			c := winner.ModifiedAt
			winner.CompletedAt = &c
		}
	}

	// Union of tags and dependencies across all versions.
	var tags, deps []string
	for _, v := range versions {
		tags = append(tags, v.Task.Tags...)
		deps = append(deps, v.Task.Dependencies...)
	}
	winner.Tags = dedupe(tags)
	winner.Dependencies = dedupe(deps)

	// Due comes from the base; a base without one adopts any other's.
	if winner.Due == nil {
		for _, v := range versions {
			if v.Task.Due != nil {
				d := *v.Task.Due
				winner.Due = &d
				break
			}
		}
	}

	if merge {
		winner.Description = mergeText(versions, winner.Description, func(t store.Task) string { return t.Description })
		winner.Notes = mergeText(versions, winner.Notes, func(t store.Task) string { return t.Notes })
	}

	// The merged task is at least as new as every input.
	for _, v := range versions {
		if v.Task.ModifiedAt.After(winner.ModifiedAt) {
			winner.ModifiedAt = v.Task.ModifiedAt
		}
	}
	return winner
}

// mergeSeparator joins divergent text fields under the merge strategy.
const mergeSeparator = "\n---\n"

func mergeText(versions []Version, base string, field func(store.Task) string) string {
	out := base
	for _, v := range versions {
		s := field(v.Task)
		if s == "" || s == out || strings.Contains(out, s) {
			continue
		}
		if out == "" {
			out = s
			continue
		}
		out = out + mergeSeparator + s
	}
	return out
}

// newestVersion picks the version with the greatest modified_at, breaking
// ties by origin order (Local first).
func newestVersion(versions []Version) Version {
	best := versions[0]
	for _, v := range versions[1:] {
		if v.Task.ModifiedAt.After(best.Task.ModifiedAt) {
			best = v
			continue
		}
		if v.Task.ModifiedAt.Equal(best.Task.ModifiedAt) && v.Origin < best.Origin {
			best = v
		}
	}
	return best
}

func newestLiving(versions []Version) *Version {
	var best *Version
	for i := range versions {
		v := &versions[i]
		if v.Task.Status == store.StatusDeleted {
			continue
		}
		if best == nil ||
			v.Task.ModifiedAt.After(best.Task.ModifiedAt) ||
			(v.Task.ModifiedAt.Equal(best.Task.ModifiedAt) && v.Origin < best.Origin) {
			best = v
		}
	}
	return best
}

// pickOrigin returns the version from the wanted origin, falling back to the
// newest version when that origin is absent.
func pickOrigin(versions []Version, want Origin) Version {
	if v := findOrigin(versions, want); v != nil {
		return *v
	}
	return newestVersion(versions)
}

func findOrigin(versions []Version, want Origin) *Version {
	for i := range versions {
		if versions[i].Origin == want {
			return &versions[i]
		}
	}
	return nil
}

func effectFor(o Origin) SideEffect {
	switch o {
	case OriginRemote:
		return PatchRemote
	case OriginGoogle:
		return PatchGoogle
	default:
		return PatchLocal
	}
}

// sameContent compares the fields the fingerprint covers plus the merged
// extras; timestamps are ignored so an already-converged store is not
// re-patched just for a clock difference.
func sameContent(a, b store.Task) bool {
	if a.Title != b.Title || a.Description != b.Description || a.Notes != b.Notes {
		return false
	}
	if a.Status != b.Status || a.Priority != b.Priority || a.Project != b.Project {
		return false
	}
	if !sameTimePtr(a.Due, b.Due) {
		return false
	}
	if !sameStrings(a.Tags, b.Tags) || !sameStrings(a.Dependencies, b.Dependencies) {
		return false
	}
	return true
}

func sameTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, s := range a {
		seen[s]++
	}
	for _, s := range b {
		seen[s]--
		if seen[s] < 0 {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

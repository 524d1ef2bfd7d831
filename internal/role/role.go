// Package role centralises the organisation's role hierarchy: role names
// are flat in encoding but hierarchical in practice (developer ⊇ admin ⊇
// election_manager ⊇ member), and event_manager is a sibling of
// election_manager rather than a superset. meeting_election_manager and
// election_manager are aliases for the same capability.
//
// The hierarchy table is process-scoped and atomically replaceable.
package role

import "sync/atomic"

const (
	Member              = "member"
	EventManager        = "event_manager"
	ElectionManager     = "election_manager"
	MeetingElectionMgr  = "meeting_election_manager" // alias of ElectionManager
	Admin               = "admin"
	Developer           = "developer"
	Superuser           = "superuser" // alias of Developer
)

// canonical maps a role name (including aliases) to its canonical form.
// Unknown role names are never silently granted power: HasRole below
// returns false for anything not in this table.
var canonical = map[string]string{
	Member:             Member,
	EventManager:       EventManager,
	ElectionManager:    ElectionManager,
	MeetingElectionMgr: ElectionManager,
	Admin:              Admin,
	Developer:          Developer,
	Superuser:          Developer,
}

// supersets[x] lists every role that x's holder is also entitled to act as.
var supersets = map[string][]string{
	Developer:       {Developer, Admin, ElectionManager, EventManager, Member},
	Admin:           {Admin, ElectionManager, EventManager, Member},
	ElectionManager: {ElectionManager, Member},
	EventManager:    {EventManager, Member},
	Member:          {Member},
}

type table struct {
	canonical map[string]string
	supersets map[string][]string
}

var current atomic.Pointer[table]

func init() {
	current.Store(&table{canonical: canonical, supersets: supersets})
}

// Replace atomically swaps the whole hierarchy — writers must never mutate
// the table in place from a request handler.
func Replace(newCanonical map[string]string, newSupersets map[string][]string) {
	current.Store(&table{canonical: newCanonical, supersets: newSupersets})
}

// Admits reports whether a caller holding `have` roles satisfies a
// `required` role, honoring the hierarchy (adding a superset role grants
// all subordinate operations; stripping a role never grants access).
func Admits(have []string, required string) bool {
	t := current.Load()
	want, ok := t.canonical[required]
	if !ok {
		return false
	}
	for _, h := range have {
		canon, ok := t.canonical[h]
		if !ok {
			continue // unknown future role name: never silently trusted
		}
		for _, granted := range t.supersets[canon] {
			if granted == want {
				return true
			}
		}
	}
	return false
}

// AdmitsAny reports whether have satisfies any of the required roles.
func AdmitsAny(have []string, required ...string) bool {
	for _, r := range required {
		if Admits(have, r) {
			return true
		}
	}
	return false
}

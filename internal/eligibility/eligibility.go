// Package eligibility implements the single election admission check,
// shared verbatim by Events (which learns election metadata over S2S) and
// Elections (which reads its own schema directly) so the two services can
// never disagree about who may act on an election.
package eligibility

import (
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/apperrors"
	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/role"
)

const (
	EligibilityAll       = "all"
	EligibilityMembers   = "members"
	EligibilityAdmins    = "admins"
	EligibilityCommittee = "committee"
)

const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusPaused    = "paused"
	StatusClosed    = "closed"
	StatusArchived  = "archived"
)

// Info is the subset of election state the eligibility check needs.
type Info struct {
	Status              string
	Hidden              bool
	Eligibility         string
	CommitteeMemberUIDs []string
}

// Caller is the identity making the request.
type Caller struct {
	MemberUID string
	IsMember  bool
	Roles     []string
}

// managementRoles are the roles that see hidden elections and the
// `admins` eligibility tier.
var managementRoles = []string{role.Admin, role.ElectionManager, role.EventManager, role.Developer}

func isManager(roles []string) bool {
	return role.AdmitsAny(roles, managementRoles...)
}

// Check runs the admission check against an election and a
// caller, returning nil when the caller may act.
func Check(info Info, caller Caller) error {
	if info.Hidden && !isManager(caller.Roles) {
		return apperrors.New(apperrors.KindNotFound, "eligibility.Check", "election not found")
	}

	if info.Status != StatusPublished {
		return stateError(info.Status)
	}

	switch info.Eligibility {
	case EligibilityAll:
		return nil
	case EligibilityMembers:
		if caller.IsMember {
			return nil
		}
		return apperrors.New(apperrors.KindForbidden, "eligibility.Check", "election is restricted to members")
	case EligibilityAdmins:
		if isManager(caller.Roles) {
			return nil
		}
		return apperrors.New(apperrors.KindForbidden, "eligibility.Check", "election is restricted to administrators")
	case EligibilityCommittee:
		for _, uid := range info.CommitteeMemberUIDs {
			if uid == caller.MemberUID {
				return nil
			}
		}
		return apperrors.New(apperrors.KindForbidden, "eligibility.Check", "caller is not a committee member")
	default:
		return apperrors.New(apperrors.KindInternal, "eligibility.Check", "unknown eligibility tier")
	}
}

func stateError(status string) error {
	switch status {
	case StatusDraft:
		return apperrors.New(apperrors.KindForbidden, "eligibility.Check", "election has not been published yet")
	case StatusPaused:
		return apperrors.New(apperrors.KindForbidden, "eligibility.Check", "election is paused")
	case StatusClosed, StatusArchived:
		return apperrors.New(apperrors.KindForbidden, "eligibility.Check", "election is no longer accepting activity")
	default:
		return apperrors.New(apperrors.KindInternal, "eligibility.Check", "unknown election status")
	}
}

// IsManager exposes the management-role test to callers that need it
// outside an eligibility check (e.g. "include_hidden" listing, results
// access).
func IsManager(roles []string) bool {
	return isManager(roles)
}

package role_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sosialistaflokkurinn/ekklesia-sub013/internal/role"
)

func TestAdmits_Hierarchy(t *testing.T) {
	require.True(t, role.Admits([]string{role.Developer}, role.Admin))
	require.True(t, role.Admits([]string{role.Admin}, role.ElectionManager))
	require.True(t, role.Admits([]string{role.ElectionManager}, role.Member))
	require.True(t, role.Admits([]string{role.Member}, role.Member))
}

// event_manager is a sibling of election_manager, not a superset, so it
// never admits election_manager.
func TestAdmits_EventManagerIsNotASupersetOfElectionManager(t *testing.T) {
	require.False(t, role.Admits([]string{role.EventManager}, role.ElectionManager))
	require.False(t, role.Admits([]string{role.ElectionManager}, role.EventManager))
	require.True(t, role.Admits([]string{role.EventManager}, role.Member))
}

func TestAdmits_StrippingNeverGrants(t *testing.T) {
	require.False(t, role.Admits([]string{role.Member}, role.Admin))
	require.False(t, role.Admits(nil, role.Member))
}

func TestAdmits_UnknownRoleNeverTrusted(t *testing.T) {
	require.False(t, role.Admits([]string{"some_future_role"}, role.Member))
	require.False(t, role.Admits([]string{role.Member}, "some_future_role"))
}

func TestAdmits_AliasesResolveToCanonical(t *testing.T) {
	require.True(t, role.Admits([]string{role.MeetingElectionMgr}, role.ElectionManager))
	require.True(t, role.Admits([]string{role.Superuser}, role.Admin))
	require.True(t, role.Admits([]string{role.Superuser}, role.Developer))
}

func TestAdmitsAny(t *testing.T) {
	require.True(t, role.AdmitsAny([]string{role.Member}, role.Admin, role.Member))
	require.False(t, role.AdmitsAny([]string{role.Member}, role.Admin, role.ElectionManager))
}

func TestReplace_SwapsWholeTableAtomically(t *testing.T) {
	newCanonical := map[string]string{"wizard": "wizard"}
	newSupersets := map[string][]string{"wizard": {"wizard"}}
	role.Replace(newCanonical, newSupersets)
	require.True(t, role.Admits([]string{"wizard"}, "wizard"))
	require.False(t, role.Admits([]string{role.Admin}, role.ElectionManager))

	// restore the default table so later tests in this package are unaffected
	role.Replace(map[string]string{
		role.Member:             role.Member,
		role.EventManager:       role.EventManager,
		role.ElectionManager:    role.ElectionManager,
		role.MeetingElectionMgr: role.ElectionManager,
		role.Admin:              role.Admin,
		role.Developer:          role.Developer,
		role.Superuser:          role.Developer,
	}, map[string][]string{
		role.Developer:       {role.Developer, role.Admin, role.ElectionManager, role.EventManager, role.Member},
		role.Admin:           {role.Admin, role.ElectionManager, role.EventManager, role.Member},
		role.ElectionManager: {role.ElectionManager, role.Member},
		role.EventManager:    {role.EventManager, role.Member},
		role.Member:          {role.Member},
	})
}

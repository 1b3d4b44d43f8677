package models

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleOrder(t *testing.T) {
	tests := []struct {
		name  string
		a, b  Role
		wantA bool
	}{
		{"owner over editor", RoleOwner, RoleEditor, true},
		{"editor over member", RoleEditor, RoleMember, true},
		{"member over anonymous", RoleMember, RoleAnonymous, true},
		{"member not over member", RoleMember, RoleMember, false},
		{"anonymous not over owner", RoleAnonymous, RoleOwner, false},
		{"unknown never outranks", Role("admin"), RoleAnonymous, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantA, tt.a.Outranks(tt.b))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("editor")
	require.NoError(t, err)
	assert.Equal(t, RoleEditor, r)
	assert.Equal(t, 2, r.Rank())

	_, err = ParseRole("superuser")
	assert.Error(t, err)
	assert.Equal(t, -1, Role("superuser").Rank())
}

func TestParseTheme(t *testing.T) {
	th, err := ParseTheme("")
	require.NoError(t, err)
	assert.Equal(t, ThemeDefault, th)

	_, err = ParseTheme("neon")
	assert.Error(t, err)
}

func TestAppNameFor(t *testing.T) {
	id := uuid.MustParse("2209422a-eef7-4668-967d-be79409972c5")
	got := AppNameFor("My Space #1", id)
	assert.Equal(t, "myspace1-2209422a-eef7-4668-967d-be79409972c5", got)
	assert.Equal(t, "-"+id.String(), AppNameFor("!!!", id))
}

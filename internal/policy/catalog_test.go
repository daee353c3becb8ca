package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogRolesFor(t *testing.T) {
	c, err := NewCatalog([]Grant{
		{Permission: "product:approve", Roles: []Role{"admin", "produce_manager"}},
		{Permission: "product:approve", Roles: []Role{"admin", "pricing_manager"}},
	})
	require.NoError(t, err)

	roles, err := c.RolesFor("product:approve")
	require.NoError(t, err)
	assert.Equal(t, []Role{"admin", "produce_manager", "pricing_manager"}, roles)
}

func TestCatalogMissingPermission(t *testing.T) {
	c, err := NewCatalog(nil)
	require.NoError(t, err)

	roles, err := c.RolesFor("system:backup")
	assert.Nil(t, roles)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPermissionNotDefined))

	var missing *MissingPermissionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, Permission("system:backup"), missing.Permission)
}

func TestCatalogRejectsMalformedKeys(t *testing.T) {
	for _, key := range []Permission{"approve", "product:", ":approve", "Product:Approve", "a:b:c"} {
		_, err := NewCatalog([]Grant{{Permission: key, Roles: []Role{"admin"}}})
		assert.ErrorIs(t, err, ErrInvalidPermission, "key %q", key)
	}
}

func TestCatalogDeclaredWithNoRoles(t *testing.T) {
	c, err := NewCatalog([]Grant{{Permission: "system:maintenance"}})
	require.NoError(t, err)

	roles, err := c.RolesFor("system:maintenance")
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.True(t, c.Has("system:maintenance"))
}

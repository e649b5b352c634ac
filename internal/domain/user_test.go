package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleBuyer.Valid())
	assert.True(t, RoleSeller.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("owner").Valid())
	assert.False(t, Role("").Valid())
}

func TestUser_LocationNames(t *testing.T) {
	u := User{Locations: []Location{{ID: 1, Name: "Moscow"}, {ID: 2, Name: "Kazan"}}}
	assert.Equal(t, []string{"Moscow", "Kazan"}, u.LocationNames())

	empty := User{}
	assert.NotNil(t, empty.LocationNames())
	assert.Empty(t, empty.LocationNames())
}

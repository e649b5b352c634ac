package domain

// Role enumerates marketplace user categories.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User is a marketplace member who may author ads.
type User struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
	Role      Role
	Age       int
	Locations []Location
	// TotalAds counts the user's published ads at query time. It is never stored.
	TotalAds int
}

// LocationNames returns the textual form of each linked location.
func (u *User) LocationNames() []string {
	names := make([]string, 0, len(u.Locations))
	for _, loc := range u.Locations {
		names = append(names, loc.String())
	}
	return names
}

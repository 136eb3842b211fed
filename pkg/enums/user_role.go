package enums

// UserRole distinguishes hosts from guests on authenticated requests.
type UserRole string

const (
	UserRoleHost  UserRole = "host"
	UserRoleGuest UserRole = "guest"
)

func (r UserRole) IsValid() bool {
	switch r {
	case UserRoleHost, UserRoleGuest:
		return true
	}
	return false
}

func (r UserRole) String() string {
	return string(r)
}

package domain

// Role enumerates caller roles recognized by the compliance queries.
// Tokens are issued by the platform auth service; this service only
// interprets the role claim for scoping.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAgent || r == RoleAdmin
}

// Principal is the authenticated caller of a scoped query.
type Principal struct {
	SubjectID string
	Role      Role
}

package roles

// Built-in role names seeded at startup.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Role is a named permission group a user belongs to.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

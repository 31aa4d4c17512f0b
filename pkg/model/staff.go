package model

// Staff identifies the agency member acting on a request. Identity is
// resolved by the upstream auth layer.
type Staff struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

const RoleAdmin = "admin"

func (s Staff) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// DisplayName falls back to the id when no name was supplied.
func (s Staff) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.ID
}

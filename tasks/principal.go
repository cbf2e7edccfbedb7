package tasks

// Principal is the authenticated caller an operation acts on behalf of.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin 是否管理员
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanDelete reports whether p may delete t.
func (p Principal) CanDelete(t *Task) bool {
	return p.IsAdmin() || p.Role == RoleProjectManager || t.CreatorID == p.ID
}

// canSee covers the checks that need no lookup; project ownership is
// resolved by the service.
func (p Principal) canSee(t *Task) bool {
	return p.IsAdmin() || t.CreatorID == p.ID || t.IsAssignedTo(p.ID)
}

func (p Principal) validate() error {
	if p.ID == "" {
		return invalidField("principal.id", "required", nil)
	}
	if p.Role != "" && !p.Role.IsValid() {
		return invalidField("principal.role", "role", string(p.Role))
	}
	return nil
}

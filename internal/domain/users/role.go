package users

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Role is ordered: RoleUser < RoleAdmin < RoleSuperAdmin.
type Role uint8

const (
	RoleUser Role = iota
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = [...]string{
	RoleUser:       "user",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "super_admin",
}

func (r Role) String() string {
	if int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

func (r Role) Valid() bool { return int(r) < len(roleNames) }

func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) AtLeast(min Role) bool { return r >= min }

// manageTable[actor][target] says whether actor may modify target's account.
var manageTable = map[Role]map[Role]bool{
	RoleUser:       {},
	RoleAdmin:      {RoleUser: true, RoleAdmin: true},
	RoleSuperAdmin: {RoleUser: true, RoleAdmin: true, RoleSuperAdmin: true},
}

func CanManage(actor, target Role) bool {
	return manageTable[actor][target]
}

// CanAssign reports whether actor may grant role to someone. Only super admins mint super admins.
func CanAssign(actor, role Role) bool {
	if !actor.AtLeast(RoleAdmin) || !role.Valid() {
		return false
	}
	return role != RoleSuperAdmin || actor == RoleSuperAdmin
}

func (r Role) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return r.String(), nil
}

func (r *Role) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("users: cannot scan %T into Role", src)
	}
	parsed, err := ParseRole(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (Role) GormDataType() string { return "varchar(20)" }

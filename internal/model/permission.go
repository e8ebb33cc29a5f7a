package model

import (
	"fmt"
	"sort"
)

// Permission is a single capability. Permissions form a closed set encoded as bits
// so a role's grants can be checked without string maps.
type Permission uint32

const (
	PermInvoicesRead Permission = 1 << iota
	PermInvoicesWrite
	PermInvoicesDelete
	PermPaymentsRead
	PermPaymentsWrite
	PermPaymentsApprove
	PermProjectsRead
	PermProjectsWrite
	PermGatewaysRead
)

// Role names carried in access tokens
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleStaff   = "staff"
	RoleClient  = "client"
)

var permissionCodes = map[Permission]string{
	PermInvoicesRead:    "invoices.read",
	PermInvoicesWrite:   "invoices.write",
	PermInvoicesDelete:  "invoices.delete",
	PermPaymentsRead:    "payments.read",
	PermPaymentsWrite:   "payments.write",
	PermPaymentsApprove: "payments.approve",
	PermProjectsRead:    "projects.read",
	PermProjectsWrite:   "projects.write",
	PermGatewaysRead:    "gateways.read",
}

var permissionsByCode = func() map[string]Permission {
	m := make(map[string]Permission, len(permissionCodes))
	for p, code := range permissionCodes {
		m[code] = p
	}
	return m
}()

func (p Permission) String() string {
	if code, ok := permissionCodes[p]; ok {
		return code
	}
	return fmt.Sprintf("permission(%d)", uint32(p))
}

// PermissionSet is a bitfield of granted permissions.
type PermissionSet uint32

const allPermissions = PermissionSet(PermInvoicesRead | PermInvoicesWrite | PermInvoicesDelete |
	PermPaymentsRead | PermPaymentsWrite | PermPaymentsApprove |
	PermProjectsRead | PermProjectsWrite | PermGatewaysRead)

var rolePermissions = map[string]PermissionSet{
	RoleAdmin:   allPermissions,
	RoleManager: allPermissions &^ PermissionSet(PermInvoicesDelete),
	RoleStaff: NewPermissionSet(PermInvoicesRead, PermInvoicesWrite, PermPaymentsRead,
		PermPaymentsWrite, PermProjectsRead, PermGatewaysRead),
	RoleClient: NewPermissionSet(PermProjectsRead, PermPaymentsWrite, PermGatewaysRead),
}

func NewPermissionSet(perms ...Permission) PermissionSet {
	var s PermissionSet
	for _, p := range perms {
		s |= PermissionSet(p)
	}
	return s
}

// Has reports whether every given permission is granted.
func (s PermissionSet) Has(perms ...Permission) bool {
	for _, p := range perms {
		if s&PermissionSet(p) == 0 {
			return false
		}
	}
	return true
}

// Codes returns the sorted permission codes in the set.
func (s PermissionSet) Codes() []string {
	codes := make([]string, 0, len(permissionCodes))
	for p, code := range permissionCodes {
		if s.Has(p) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes
}

// PermissionsForRole returns the default grants of a role and whether the role is known.
func PermissionsForRole(role string) (PermissionSet, bool) {
	s, ok := rolePermissions[role]
	return s, ok
}

// ParsePermissionCodes converts codes such as "invoices.read" into a set.
// Unknown codes are an error so a token cannot smuggle in free-form grants.
func ParsePermissionCodes(codes []string) (PermissionSet, error) {
	var s PermissionSet
	for _, code := range codes {
		p, ok := permissionsByCode[code]
		if !ok {
			return 0, fmt.Errorf("unknown permission %q", code)
		}
		s |= PermissionSet(p)
	}
	return s, nil
}

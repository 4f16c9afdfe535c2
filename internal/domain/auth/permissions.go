package auth

import "context"

const (
	RoleViewer  = "payroll_viewer"
	RoleClerk   = "payroll_clerk"
	RoleManager = "payroll_manager"
	RoleAuditor = "auditor"
)

const (
	PermPayrollRead   = "payroll.read"
	PermPayrollWrite  = "payroll.write"
	PermPayrollImport = "payroll.import"
	PermPayrollExport = "payroll.export"
	PermPayrollStatus = "payroll.status"
	PermAuditRead     = "audit.read"
)

var DefaultPermissions = []string{
	PermPayrollRead,
	PermPayrollWrite,
	PermPayrollImport,
	PermPayrollExport,
	PermPayrollStatus,
	PermAuditRead,
}

var RolePermissions = map[string][]string{
	RoleViewer: {
		PermPayrollRead,
	},
	RoleClerk: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollImport,
		PermPayrollExport,
	},
	RoleManager: {
		PermPayrollRead,
		PermPayrollWrite,
		PermPayrollImport,
		PermPayrollExport,
		PermPayrollStatus,
		PermAuditRead,
	},
	RoleAuditor: {
		PermPayrollRead,
		PermPayrollExport,
		PermAuditRead,
	},
}

// StaticPermissions answers permission checks from RolePermissions by role
// name.
type StaticPermissions struct{}

func (StaticPermissions) HasPermission(_ context.Context, role, permission string) (bool, error) {
	for _, granted := range RolePermissions[role] {
		if granted == permission {
			return true, nil
		}
	}
	return false, nil
}

package utils

import "deadstock/models"

// Permission names exposed to the frontend after login.
const (
	PermViewDashboard    = "view_dashboard"
	PermManageUsers      = "manage_users"
	PermManageAssets     = "manage_assets"
	PermAssignAssets     = "assign_assets"
	PermFlagDeadStock    = "flag_dead_stock"
	PermManageVendors    = "manage_vendors"
	PermManageMaint      = "manage_maintenance"
	PermReviewApprovals  = "review_approvals"
	PermRequestTransfer  = "request_transfer"
	PermManagePurchasing = "manage_purchasing"
	PermRequestDisposal  = "request_disposal"
	PermViewReports      = "view_reports"
	PermManageAudits     = "manage_audits"
	PermRecordFindings   = "record_findings"
	PermViewAuditLogs    = "view_audit_logs"
	PermManageSettings   = "manage_settings"
)

var rolePermissions = map[string][]string{
	models.RoleAdmin: {
		PermViewDashboard, PermManageUsers, PermManageAssets, PermAssignAssets, PermFlagDeadStock,
		PermManageVendors, PermManageMaint, PermReviewApprovals, PermRequestTransfer,
		PermManagePurchasing, PermRequestDisposal, PermViewReports, PermManageAudits,
		PermRecordFindings, PermViewAuditLogs, PermManageSettings,
	},
	models.RoleInventoryManager: {
		PermViewDashboard, PermManageAssets, PermAssignAssets, PermFlagDeadStock, PermManageVendors,
		PermManageMaint, PermReviewApprovals, PermRequestTransfer, PermManagePurchasing,
		PermRequestDisposal, PermViewReports,
	},
	models.RoleAuditor: {
		PermViewDashboard, PermFlagDeadStock, PermViewReports, PermManageAudits,
		PermRecordFindings, PermViewAuditLogs,
	},
	models.RoleEmployee: {
		PermViewDashboard, PermRequestTransfer,
	},
}

func HasPermission(role, perm string) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns the permission map sent with the login response.
func PermissionsForRole(role string) map[string]bool {
	out := make(map[string]bool, len(rolePermissions[role]))
	for _, p := range rolePermissions[role] {
		out[p] = true
	}
	return out
}

// DashboardPath is the SPA landing page for a role.
func DashboardPath(role string) string {
	switch role {
	case models.RoleAdmin:
		return "/dashboard/admin"
	case models.RoleInventoryManager:
		return "/dashboard/inventory"
	case models.RoleAuditor:
		return "/dashboard/auditor"
	default:
		return "/dashboard/employee"
	}
}

// HasRole reports whether role is one of allowed.
func HasRole(role string, allowed ...string) bool {
	for _, a := range allowed {
		if role == a {
			return true
		}
	}
	return false
}

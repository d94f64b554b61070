package routes

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"deadstock/config"
	"deadstock/handlers"
	"deadstock/middleware"
	"deadstock/models"
	"deadstock/websocket"
)

// HTTP method constants for better maintainability
var (
	MethodsGetOnly    = []string{"GET", "OPTIONS"}
	MethodsPostOnly   = []string{"POST", "OPTIONS"}
	MethodsPutOnly    = []string{"PUT", "OPTIONS"}
	MethodsDeleteOnly = []string{"DELETE", "OPTIONS"}
)

// Route grouping constants
const (
	PathAPI       = "/api"
	PathHealth    = "/health"
	PathWebSocket = "/ws/audit"
)

// Role groups used by the route table.
var (
	adminOnly = []string{models.RoleAdmin}
	managers  = []string{models.RoleAdmin, models.RoleInventoryManager}
	auditors  = []string{models.RoleAdmin, models.RoleAuditor}
	staff     = []string{models.RoleAdmin, models.RoleInventoryManager, models.RoleAuditor}
)

// gate wraps a handler so only the listed roles reach it.
func gate(h http.HandlerFunc, roles []string) http.Handler {
	return middleware.RequireRoles(roles...)(h)
}

func RegisterRoutes(r *mux.Router) {
	// ====================
	// HEALTH CHECK & WEBSOCKET (Public, websocket authenticates itself)
	// ====================
	r.HandleFunc(PathHealth, handlers.HealthCheck).Methods(MethodsGetOnly...)
	r.HandleFunc(PathWebSocket, websocket.HandleWebSocket)

	// ====================
	// AUTHENTICATION ROUTES (Public)
	// ====================
	loginLimiter := middleware.NewIPRateLimiter(config.LoginRatePerSec, config.LoginBurst, 10*time.Minute)
	r.Handle("/api/auth/login", loginLimiter.Middleware(http.HandlerFunc(handlers.Login))).Methods(MethodsPostOnly...)
	r.HandleFunc("/api/auth/logout", handlers.Logout).Methods(MethodsPostOnly...)

	// ====================
	// PROTECTED API ROUTES (Require authentication)
	// ====================
	api := r.PathPrefix(PathAPI).Subrouter()
	api.Use(middleware.AuthMiddleware)

	api.HandleFunc("/auth/me", handlers.Me).Methods(MethodsGetOnly...)
	api.HandleFunc("/auth/change-password", handlers.ChangePassword).Methods(MethodsPostOnly...)

	// ====================
	// USER MANAGEMENT
	// ====================
	api.Handle("/users", gate(handlers.ListUsers, adminOnly)).Methods(MethodsGetOnly...)
	api.Handle("/users", gate(handlers.CreateUser, adminOnly)).Methods(MethodsPostOnly...)
	api.Handle("/users/{id}", gate(handlers.GetUser, adminOnly)).Methods(MethodsGetOnly...)
	api.Handle("/users/{id}", gate(handlers.UpdateUser, adminOnly)).Methods(MethodsPutOnly...)
	api.Handle("/users/{id}", gate(handlers.DeleteUser, adminOnly)).Methods(MethodsDeleteOnly...)
	api.Handle("/users/{id}/assets", gate(handlers.GetUserAssets, adminOnly)).Methods(MethodsGetOnly...)

	// ====================
	// ASSETS (fixed paths before /{id})
	// ====================
	api.HandleFunc("/assets/my", handlers.GetMyAssets).Methods(MethodsGetOnly...)
	api.HandleFunc("/assets/categories", handlers.ListAssetCategories).Methods(MethodsGetOnly...)
	api.HandleFunc("/assets", handlers.ListAssets).Methods(MethodsGetOnly...)
	api.Handle("/assets", gate(handlers.CreateAsset, managers)).Methods(MethodsPostOnly...)
	api.HandleFunc("/assets/{id}", handlers.GetAsset).Methods(MethodsGetOnly...)
	api.Handle("/assets/{id}", gate(handlers.UpdateAsset, managers)).Methods(MethodsPutOnly...)
	api.Handle("/assets/{id}", gate(handlers.DeleteAsset, adminOnly)).Methods(MethodsDeleteOnly...)
	api.Handle("/assets/{id}/assign", gate(handlers.AssignAsset, managers)).Methods(MethodsPostOnly...)
	api.Handle("/assets/{id}/unassign", gate(handlers.UnassignAsset, managers)).Methods(MethodsPostOnly...)
	api.Handle("/assets/{id}/dead-stock", gate(handlers.MarkDeadStock, staff)).Methods(MethodsPostOnly...)
	api.Handle("/assets/{id}/restore", gate(handlers.RestoreAsset, managers)).Methods(MethodsPostOnly...)
	api.Handle("/assets/{id}/history", gate(handlers.GetAssetHistory, staff)).Methods(MethodsGetOnly...)
	api.Handle("/assets/{id}/depreciation", gate(handlers.GetAssetDepreciation, staff)).Methods(MethodsGetOnly...)

	// ====================
	// VENDORS
	// ====================
	api.Handle("/vendors", gate(handlers.ListVendors, staff)).Methods(MethodsGetOnly...)
	api.Handle("/vendors", gate(handlers.CreateVendor, managers)).Methods(MethodsPostOnly...)
	api.Handle("/vendors/{id}", gate(handlers.GetVendor, staff)).Methods(MethodsGetOnly...)
	api.Handle("/vendors/{id}", gate(handlers.UpdateVendor, managers)).Methods(MethodsPutOnly...)
	api.Handle("/vendors/{id}", gate(handlers.DeleteVendor, managers)).Methods(MethodsDeleteOnly...)
	api.Handle("/vendors/{id}/stats", gate(handlers.GetVendorStats, staff)).Methods(MethodsGetOnly...)

	// ====================
	// MAINTENANCE
	// ====================
	api.Handle("/maintenance/upcoming", gate(handlers.GetUpcomingMaintenance, staff)).Methods(MethodsGetOnly...)
	api.Handle("/maintenance/overdue", gate(handlers.GetOverdueMaintenance, staff)).Methods(MethodsGetOnly...)
	api.Handle("/maintenance", gate(handlers.ListMaintenance, staff)).Methods(MethodsGetOnly...)
	api.Handle("/maintenance", gate(handlers.CreateMaintenance, managers)).Methods(MethodsPostOnly...)
	api.Handle("/maintenance/{id}", gate(handlers.GetMaintenance, staff)).Methods(MethodsGetOnly...)
	api.Handle("/maintenance/{id}", gate(handlers.UpdateMaintenance, managers)).Methods(MethodsPutOnly...)
	api.Handle("/maintenance/{id}/complete", gate(handlers.CompleteMaintenance, managers)).Methods(MethodsPostOnly...)
	api.Handle("/maintenance/{id}/cancel", gate(handlers.CancelMaintenance, managers)).Methods(MethodsPostOnly...)

	// ====================
	// APPROVALS (list/get scope themselves by role)
	// ====================
	api.HandleFunc("/approvals", handlers.ListApprovals).Methods(MethodsGetOnly...)
	api.HandleFunc("/approvals/{id}", handlers.GetApproval).Methods(MethodsGetOnly...)
	api.Handle("/approvals/{id}/approve", gate(handlers.ApproveApproval, managers)).Methods(MethodsPostOnly...)
	api.Handle("/approvals/{id}/reject", gate(handlers.RejectApproval, managers)).Methods(MethodsPostOnly...)
	api.HandleFunc("/approvals/{id}/cancel", handlers.CancelApproval).Methods(MethodsPostOnly...)

	// ====================
	// TRANSFERS & DISPOSALS
	// ====================
	api.HandleFunc("/transfers", handlers.ListTransfers).Methods(MethodsGetOnly...)
	api.HandleFunc("/transfers", handlers.RequestTransfer).Methods(MethodsPostOnly...)
	api.HandleFunc("/transfers/{id}", handlers.GetTransfer).Methods(MethodsGetOnly...)

	api.Handle("/disposals", gate(handlers.ListDisposals, staff)).Methods(MethodsGetOnly...)
	api.Handle("/disposals", gate(handlers.RequestDisposal, managers)).Methods(MethodsPostOnly...)
	api.Handle("/disposals/{id}", gate(handlers.GetDisposal, staff)).Methods(MethodsGetOnly...)

	// ====================
	// PURCHASING
	// ====================
	api.Handle("/purchase-orders", gate(handlers.ListPurchaseOrders, managers)).Methods(MethodsGetOnly...)
	api.Handle("/purchase-orders", gate(handlers.CreatePurchaseOrder, managers)).Methods(MethodsPostOnly...)
	api.Handle("/purchase-orders/{id}", gate(handlers.GetPurchaseOrder, managers)).Methods(MethodsGetOnly...)
	api.Handle("/purchase-orders/{id}", gate(handlers.UpdatePurchaseOrder, managers)).Methods(MethodsPutOnly...)
	api.Handle("/purchase-orders/{id}", gate(handlers.DeletePurchaseOrder, managers)).Methods(MethodsDeleteOnly...)
	api.Handle("/purchase-orders/{id}/submit", gate(handlers.SubmitPurchaseOrder, managers)).Methods(MethodsPostOnly...)
	api.Handle("/purchase-orders/{id}/order", gate(handlers.OrderPurchaseOrder, managers)).Methods(MethodsPostOnly...)
	api.Handle("/purchase-orders/{id}/receive", gate(handlers.ReceivePurchaseOrder, managers)).Methods(MethodsPostOnly...)
	api.Handle("/purchase-orders/{id}/cancel", gate(handlers.CancelPurchaseOrder, managers)).Methods(MethodsPostOnly...)

	api.Handle("/invoices/overdue", gate(handlers.GetOverdueInvoices, managers)).Methods(MethodsGetOnly...)
	api.Handle("/invoices", gate(handlers.ListInvoices, managers)).Methods(MethodsGetOnly...)
	api.Handle("/invoices", gate(handlers.CreateInvoice, managers)).Methods(MethodsPostOnly...)
	api.Handle("/invoices/{id}", gate(handlers.GetInvoice, managers)).Methods(MethodsGetOnly...)
	api.Handle("/invoices/{id}", gate(handlers.UpdateInvoice, managers)).Methods(MethodsPutOnly...)
	api.Handle("/invoices/{id}", gate(handlers.DeleteInvoice, managers)).Methods(MethodsDeleteOnly...)
	api.Handle("/invoices/{id}/pay", gate(handlers.PayInvoice, managers)).Methods(MethodsPostOnly...)

	// ====================
	// REPORTS (templates before /{type})
	// ====================
	api.Handle("/reports/templates", gate(handlers.ListReportTemplates, staff)).Methods(MethodsGetOnly...)
	api.Handle("/reports/templates", gate(handlers.CreateReportTemplate, staff)).Methods(MethodsPostOnly...)
	api.Handle("/reports/templates/{id}", gate(handlers.GetReportTemplate, staff)).Methods(MethodsGetOnly...)
	api.Handle("/reports/templates/{id}", gate(handlers.UpdateReportTemplate, staff)).Methods(MethodsPutOnly...)
	api.Handle("/reports/templates/{id}", gate(handlers.DeleteReportTemplate, staff)).Methods(MethodsDeleteOnly...)
	api.Handle("/reports/templates/{id}/generate", gate(handlers.GenerateFromTemplate, staff)).Methods(MethodsPostOnly...)
	api.Handle("/reports/{type}", gate(handlers.GenerateReport, staff)).Methods(MethodsGetOnly...)

	// ====================
	// SCHEDULED AUDITS
	// ====================
	api.Handle("/scheduled-audits", gate(handlers.ListScheduledAudits, staff)).Methods(MethodsGetOnly...)
	api.Handle("/scheduled-audits", gate(handlers.CreateScheduledAudit, auditors)).Methods(MethodsPostOnly...)
	api.Handle("/scheduled-audits/upcoming", gate(handlers.GetUpcomingScheduledAudits, staff)).Methods(MethodsGetOnly...)
	api.Handle("/scheduled-audits/{id}", gate(handlers.GetScheduledAudit, staff)).Methods(MethodsGetOnly...)
	api.Handle("/scheduled-audits/{id}", gate(handlers.UpdateScheduledAudit, auditors)).Methods(MethodsPutOnly...)
	api.Handle("/scheduled-audits/{id}", gate(handlers.DeleteScheduledAudit, auditors)).Methods(MethodsDeleteOnly...)
	api.Handle("/scheduled-audits/{id}/run", gate(handlers.RunScheduledAuditNow, auditors)).Methods(MethodsPostOnly...)
	api.Handle("/scheduled-audits/{id}/runs", gate(handlers.ListAuditRuns, staff)).Methods(MethodsGetOnly...)

	api.Handle("/audit-runs/{id}", gate(handlers.GetAuditRun, staff)).Methods(MethodsGetOnly...)
	api.Handle("/audit-runs/{id}/findings", gate(handlers.RecordFinding, auditors)).Methods(MethodsPostOnly...)
	api.Handle("/audit-runs/{id}/complete", gate(handlers.CompleteAuditRun, auditors)).Methods(MethodsPostOnly...)

	// ====================
	// SETTINGS, AUDIT LOGS, NOTIFICATIONS
	// ====================
	api.HandleFunc("/settings", handlers.GetSettings).Methods(MethodsGetOnly...)
	api.Handle("/settings", gate(handlers.UpdateSettings, adminOnly)).Methods(MethodsPutOnly...)

	api.Handle("/audit-logs", gate(handlers.ListAuditLogs, auditors)).Methods(MethodsGetOnly...)

	api.HandleFunc("/notifications", handlers.ListNotifications).Methods(MethodsGetOnly...)
	api.HandleFunc("/notifications/read-all", handlers.MarkAllNotificationsRead).Methods(MethodsPostOnly...)
	api.HandleFunc("/notifications/{id}/read", handlers.MarkNotificationRead).Methods(MethodsPostOnly...)

	// ====================
	// DASHBOARD ENDPOINTS
	// ====================
	api.HandleFunc("/dashboard", handlers.GetDashboard).Methods(MethodsGetOnly...)
	api.Handle("/dashboard/admin", gate(handlers.GetAdminDashboard, adminOnly)).Methods(MethodsGetOnly...)
	api.Handle("/dashboard/inventory", gate(handlers.GetInventoryDashboard, managers)).Methods(MethodsGetOnly...)
	api.Handle("/dashboard/auditor", gate(handlers.GetAuditorDashboard, auditors)).Methods(MethodsGetOnly...)
	api.HandleFunc("/dashboard/employee", handlers.GetEmployeeDashboard).Methods(MethodsGetOnly...)
}

// LogRoutes prints the route table once at startup.
func LogRoutes(r *mux.Router) {
	r.Walk(func(route *mux.Route, router *mux.Router, ancestors []*mux.Route) error {
		t, err := route.GetPathTemplate()
		if err == nil {
			methods, _ := route.GetMethods()
			log.Printf("Route: %s %s", strings.Join(methods, ","), t)
		}
		return nil
	})
}

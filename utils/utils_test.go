package utils

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"deadstock/config"
	"deadstock/models"
)

func TestJWTRoundTrip(t *testing.T) {
	config.JWTKey = []byte("test-secret")
	config.JWTExpiration = time.Hour

	token, err := GenerateJWT("65a000000000000000000001", "Ada Admin", "ada@example.com", models.RoleAdmin)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	claims, err := ValidateJWT(token)
	if err != nil {
		t.Fatalf("ValidateJWT: %v", err)
	}
	if claims.UserID != "65a000000000000000000001" || claims.Role != models.RoleAdmin || claims.Email != "ada@example.com" {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestJWTRejectsExpiredAndForeignTokens(t *testing.T) {
	config.JWTKey = []byte("test-secret")

	config.JWTExpiration = -time.Minute
	expired, _ := GenerateJWT("u1", "n", "e@x.io", models.RoleEmployee)
	if _, err := ValidateJWT(expired); err == nil {
		t.Error("expired token accepted")
	}

	config.JWTExpiration = time.Hour
	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1", Role: models.RoleAdmin})
	signed, _ := foreign.SignedString([]byte("other-secret"))
	if _, err := ValidateJWT(signed); err == nil {
		t.Error("token signed with another key accepted")
	}

	noRole := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1"})
	signed, _ = noRole.SignedString(config.JWTKey)
	if _, err := ValidateJWT(signed); err == nil {
		t.Error("token without role accepted")
	}
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret-pass", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPasswordHash("s3cret-pass", hash) {
		t.Error("correct password rejected")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Error("wrong password accepted")
	}
	if got := GenerateRandomPassword(12); len(got) != 12 {
		t.Errorf("random password length %d", len(got))
	}
}

func TestGetPaginationParams(t *testing.T) {
	cases := []struct {
		query     string
		wantPage  int
		wantLimit int
		wantSkip  int64
	}{
		{"", 1, 20, 0},
		{"page=3&limit=10", 3, 10, 20},
		{"page=0&limit=500", 1, 20, 0},
		{"page=-2&limit=abc", 1, 20, 0},
		{"page=2&limit=100", 2, 100, 100},
		{"page=9223372036854775807&limit=100", MaxPage, 100, int64(MaxPage-1) * 100},
		{"page=99999999999999999999", 1, 20, 0},
	}
	for _, c := range cases {
		q, _ := url.ParseQuery(c.query)
		p := GetPaginationParams(q)
		if p.Page != c.wantPage || p.Limit != c.wantLimit || p.Skip() != c.wantSkip || p.Skip() < 0 {
			t.Errorf("%q: got %+v skip %d", c.query, p, p.Skip())
		}
	}
}

type sampleRequest struct {
	Name  string          `json:"name" validate:"required"`
	Email string          `json:"email" validate:"omitempty,email"`
	Role  string          `json:"role" validate:"oneof=admin employee"`
	Cost  decimal.Decimal `json:"cost" validate:"gte=0"`
}

func TestValidateStruct(t *testing.T) {
	cases := []struct {
		req  sampleRequest
		want string
	}{
		{sampleRequest{Role: "admin"}, "name is required"},
		{sampleRequest{Name: "x", Email: "nope", Role: "admin"}, "email must be a valid email"},
		{sampleRequest{Name: "x", Role: "root"}, "role must be one of [admin employee]"},
		{sampleRequest{Name: "x", Role: "admin", Cost: decimal.NewFromInt(-1)}, "cost must be at least 0"},
		{sampleRequest{Name: "x", Role: "employee", Cost: decimal.NewFromInt(5)}, ""},
	}
	for _, c := range cases {
		err := ValidateStruct(c.req)
		got := ""
		if err != nil {
			got = err.Error()
		}
		if got != c.want {
			t.Errorf("ValidateStruct(%+v) = %q, want %q", c.req, got, c.want)
		}
	}
}

func TestPermissions(t *testing.T) {
	if !HasPermission(models.RoleAdmin, PermManageSettings) {
		t.Error("admin should manage settings")
	}
	if HasPermission(models.RoleEmployee, PermManageAssets) {
		t.Error("employee must not manage assets")
	}
	if !HasPermission(models.RoleAuditor, PermRecordFindings) {
		t.Error("auditor should record findings")
	}
	perms := PermissionsForRole(models.RoleInventoryManager)
	if !perms[PermReviewApprovals] || perms[PermManageUsers] {
		t.Errorf("inventory manager permissions wrong: %v", perms)
	}
	if DashboardPath("unknown") != "/dashboard/employee" {
		t.Error("unknown role should land on employee dashboard")
	}
}

func TestGeneratedNumbers(t *testing.T) {
	now := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	if !regexp.MustCompile(`^AST-[0-9A-F]{8}$`).MatchString(NewAssetTag()) {
		t.Error("asset tag format")
	}
	if !regexp.MustCompile(`^PO-20240131-[0-9A-F]{4}$`).MatchString(NewPONumber(now)) {
		t.Error("po number format")
	}
	if !regexp.MustCompile(`^INV-202401-[0-9A-F]{6}$`).MatchString(NewInvoiceNumber(now)) {
		t.Error("invoice number format")
	}
	if NewAssetTag() == NewAssetTag() {
		t.Error("asset tags should differ")
	}
}

func TestClientIP(t *testing.T) {
	orig := config.TrustedProxies
	t.Cleanup(func() { config.TrustedProxies = orig })

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "198.51.100.4:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.9")
	r.Header.Set("X-Real-IP", "203.0.113.10")

	config.TrustedProxies = nil
	if got := ClientIP(r); got != "198.51.100.4" {
		t.Errorf("untrusted peer ip = %q, want RemoteAddr", got)
	}

	_, lan, _ := net.ParseCIDR("10.0.0.0/8")
	config.TrustedProxies = []*net.IPNet{lan}
	r.RemoteAddr = "10.0.0.7:5555"
	r.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.9 , 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.9" {
		t.Errorf("forwarded ip = %q, want first untrusted hop from the right", got)
	}

	r.Header.Del("X-Forwarded-For")
	if got := ClientIP(r); got != "203.0.113.10" {
		t.Errorf("real ip = %q", got)
	}
}

func TestAuthContext(t *testing.T) {
	if _, ok := AuthFromContext(context.Background()); ok {
		t.Error("empty context reported auth")
	}
	id := primitive.NewObjectID()
	ctx := WithAuth(context.Background(), AuthInfo{UserID: id, Role: models.RoleAuditor})
	info, ok := AuthFromContext(ctx)
	if !ok || info.UserID != id || info.Role != models.RoleAuditor {
		t.Errorf("AuthFromContext = %+v, %v", info, ok)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := MustAuth(rec, req); ok || rec.Code != http.StatusUnauthorized {
		t.Errorf("MustAuth without auth: ok=%v code=%d", ok, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "authentication required") {
		t.Errorf("body %s", rec.Body.String())
	}
}

package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/database"
	"deadstock/models"
	"deadstock/utils"
)

func newMock(t *testing.T) *mtest.T {
	return mtest.New(t, mtest.NewOptions().
		ClientType(mtest.Mock).
		ClientOptions(options.Client().SetRegistry(database.NewRegistry())))
}

// request builds a request with mux vars and, when role is set, an authenticated caller.
func request(method, target string, body interface{}, vars map[string]string, user primitive.ObjectID, role string) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	if vars != nil {
		r = mux.SetURLVars(r, vars)
	}
	if role != "" {
		r = r.WithContext(utils.WithAuth(r.Context(), utils.AuthInfo{UserID: user, Name: "Test User", Role: role}))
	}
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestGetVendor(t *testing.T) {
	mt := newMock(t)

	mt.Run("found", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		id := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "deadstock.vendors", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: id}, {Key: "name", Value: "Acme Supplies"}, {Key: "status", Value: "active"}}))

		rec := httptest.NewRecorder()
		GetVendor(rec, request(http.MethodGet, "/api/vendors/"+id.Hex(), nil, map[string]string{"id": id.Hex()}, primitive.NilObjectID, ""))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())
		var v models.Vendor
		decodeBody(mt.T, rec, &v)
		assert.Equal(mt, id, v.ID)
		assert.Equal(mt, "Acme Supplies", v.Name)
	})

	mt.Run("missing", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "deadstock.vendors", mtest.FirstBatch))

		id := primitive.NewObjectID()
		rec := httptest.NewRecorder()
		GetVendor(rec, request(http.MethodGet, "/", nil, map[string]string{"id": id.Hex()}, primitive.NilObjectID, ""))
		assert.Equal(mt, http.StatusNotFound, rec.Code)
	})

	mt.Run("bad id", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		rec := httptest.NewRecorder()
		GetVendor(rec, request(http.MethodGet, "/", nil, map[string]string{"id": "not-an-id"}, primitive.NilObjectID, ""))
		assert.Equal(mt, http.StatusBadRequest, rec.Code)
	})
}

func TestGetSettingsDefaults(t *testing.T) {
	mt := newMock(t)

	mt.Run("no document", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "deadstock.settings", mtest.FirstBatch))

		rec := httptest.NewRecorder()
		GetSettings(rec, request(http.MethodGet, "/api/settings", nil, nil, primitive.NilObjectID, ""))
		require.Equal(mt, http.StatusOK, rec.Code)
		var s models.Settings
		decodeBody(mt.T, rec, &s)
		assert.Equal(mt, 180, s.DeadStockThresholdDays)
		assert.Equal(mt, "straight_line", s.DepreciationMethod)
	})

	mt.Run("stored value wins", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "deadstock.settings", mtest.FirstBatch,
			bson.D{{Key: "_id", Value: models.SettingsID}, {Key: "deadStockThresholdDays", Value: 90}}))

		rec := httptest.NewRecorder()
		GetSettings(rec, request(http.MethodGet, "/api/settings", nil, nil, primitive.NilObjectID, ""))
		var s models.Settings
		decodeBody(mt.T, rec, &s)
		assert.Equal(mt, 90, s.DeadStockThresholdDays)
		assert.Equal(mt, "USD", s.Currency, "missing fields keep defaults")
	})
}

func TestReviewApprovalGuards(t *testing.T) {
	mt := newMock(t)
	requester := primitive.NewObjectID()
	reviewer := primitive.NewObjectID()

	approvalDoc := func(id primitive.ObjectID, status string) bson.D {
		return bson.D{
			{Key: "_id", Value: id},
			{Key: "type", Value: models.ApprovalTransfer},
			{Key: "title", Value: "Transfer AST-1"},
			{Key: "status", Value: status},
			{Key: "entityType", Value: "transfer"},
			{Key: "entityId", Value: primitive.NewObjectID()},
			{Key: "requestedBy", Value: requester},
			{Key: "createdAt", Value: time.Now()},
		}
	}

	cases := []struct {
		name   string
		status string
		caller primitive.ObjectID
		want   int
	}{
		{"already reviewed", models.ApprovalApproved, reviewer, http.StatusConflict},
		{"own request", models.ApprovalPending, requester, http.StatusForbidden},
	}
	for _, c := range cases {
		mt.Run(c.name, func(mt *mtest.T) {
			UseDatabase(mt.DB)
			id := primitive.NewObjectID()
			mt.AddMockResponses(mtest.CreateCursorResponse(0, "deadstock.approvals", mtest.FirstBatch, approvalDoc(id, c.status)))

			rec := httptest.NewRecorder()
			ApproveApproval(rec, request(http.MethodPost, "/", nil, map[string]string{"id": id.Hex()}, c.caller, models.RoleInventoryManager))
			assert.Equal(mt, c.want, rec.Code, rec.Body.String())
		})
	}

	mt.Run("unauthenticated", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		rec := httptest.NewRecorder()
		ApproveApproval(rec, request(http.MethodPost, "/", nil, map[string]string{"id": primitive.NewObjectID().Hex()}, primitive.NilObjectID, ""))
		assert.Equal(mt, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetPurchaseOrderDecodesDecimals(t *testing.T) {
	mt := newMock(t)

	mt.Run("decimal128 totals", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		id := primitive.NewObjectID()
		total, _ := primitive.ParseDecimal128("1089.00")
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "deadstock.purchaseOrders", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: id},
			{Key: "poNumber", Value: "PO-202406-XYZ"},
			{Key: "status", Value: models.POApproved},
			{Key: "totalAmount", Value: total},
			{Key: "items", Value: bson.A{bson.D{
				{Key: "description", Value: "Chair"},
				{Key: "quantity", Value: int32(11)},
				{Key: "unitPrice", Value: 99.0},
			}}},
		}))

		rec := httptest.NewRecorder()
		GetPurchaseOrder(rec, request(http.MethodGet, "/", nil, map[string]string{"id": id.Hex()}, primitive.NilObjectID, ""))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())
		var po models.PurchaseOrder
		decodeBody(mt.T, rec, &po)
		assert.Equal(mt, "1089", po.TotalAmount.String())
		assert.EqualValues(mt, 11, po.UnitCount())
		require.Len(mt, po.Items, 1)
		assert.Equal(mt, "99", po.Items[0].UnitPrice.String())
	})
}

func TestCreatePurchaseOrderValidation(t *testing.T) {
	mt := newMock(t)

	mt.Run("rejects empty items", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		body := map[string]interface{}{"vendorId": primitive.NewObjectID().Hex(), "items": []interface{}{}}
		rec := httptest.NewRecorder()
		CreatePurchaseOrder(rec, request(http.MethodPost, "/api/purchase-orders", body, nil, primitive.NewObjectID(), models.RoleInventoryManager))
		assert.Equal(mt, http.StatusBadRequest, rec.Code, rec.Body.String())
	})
}

func TestGenerateReportRejectsUnknownInputs(t *testing.T) {
	cases := []struct {
		name   string
		target string
		vars   map[string]string
	}{
		{"unknown type", "/api/reports/stock?format=csv", map[string]string{"type": "stock"}},
		{"unknown format", "/api/reports/dead_stock?format=pdf", map[string]string{"type": "dead_stock"}},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		GenerateReport(rec, request(http.MethodGet, c.target, nil, c.vars, primitive.NewObjectID(), models.RoleAuditor))
		assert.Equal(t, http.StatusBadRequest, rec.Code, c.name)
	}
}

func TestHealthCheckWithoutBackends(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp HealthCheckResponse
	decodeBody(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "disabled", resp.Redis)
	assert.Equal(t, Version, resp.Version)
}

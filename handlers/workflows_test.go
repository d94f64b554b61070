package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"deadstock/database"
	"deadstock/models"
)

func cursorOf(docs ...bson.D) bson.D {
	return mtest.CreateCursorResponse(0, "deadstock.mock", mtest.FirstBatch, docs...)
}

func matched(n int) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func modifiedTo(doc bson.D) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: doc})
}

func countOf(n int) bson.D {
	return cursorOf(bson.D{{Key: "_id", Value: 1}, {Key: "n", Value: n}})
}

// sent returns the commands named cmd that targeted coll, in the order issued.
func sent(mt *mtest.T, cmd, coll string) []bson.Raw {
	var out []bson.Raw
	for _, ev := range mt.GetAllStartedEvents() {
		if ev.CommandName != cmd {
			continue
		}
		if name, ok := ev.Command.Lookup(cmd).StringValueOK(); ok && name == coll {
			out = append(out, ev.Command)
		}
	}
	return out
}

func lookup(t *testing.T, doc bson.Raw, path ...string) bson.RawValue {
	t.Helper()
	v, err := doc.LookupErr(path...)
	require.NoError(t, err, "missing %v in %s", path, doc)
	return v
}

func lookupString(t *testing.T, doc bson.Raw, path ...string) string {
	t.Helper()
	s, ok := lookup(t, doc, path...).StringValueOK()
	require.True(t, ok, "%v is not a string", path)
	return s
}

func lookupIDs(t *testing.T, doc bson.Raw, path ...string) []primitive.ObjectID {
	t.Helper()
	var ids []primitive.ObjectID
	require.NoError(t, lookup(t, doc, path...).Unmarshal(&ids))
	return ids
}

func TestRunDueAuditsClaimsOncePerSchedule(t *testing.T) {
	mt := newMock(t)
	now := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

	mt.Run("missed periods collapse into one run", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		takenElsewhere := primitive.NewObjectID()
		weekly := primitive.NewObjectID()
		auditor := primitive.NewObjectID()
		asset1, asset2 := primitive.NewObjectID(), primitive.NewObjectID()
		lastDue := now.AddDate(0, 0, -15)

		mt.AddMockResponses(
			cursorOf(
				bson.D{
					{Key: "_id", Value: takenElsewhere}, {Key: "name", Value: "Daily spot check"},
					{Key: "frequency", Value: models.FrequencyDaily}, {Key: "isActive", Value: true},
					{Key: "nextRunAt", Value: now.Add(-time.Hour)},
				},
				bson.D{
					{Key: "_id", Value: weekly}, {Key: "name", Value: "Weekly store audit"},
					{Key: "frequency", Value: models.FrequencyWeekly}, {Key: "isActive", Value: true},
					{Key: "nextRunAt", Value: lastDue}, {Key: "auditorIds", Value: bson.A{auditor}},
				},
				bson.D{
					{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "Not yet"},
					{Key: "frequency", Value: models.FrequencyDaily}, {Key: "isActive", Value: true},
					{Key: "nextRunAt", Value: now.Add(time.Hour)},
				},
			),
			matched(0), // another tick already claimed the daily schedule
			matched(1),
			cursorOf(bson.D{{Key: "_id", Value: asset1}}, bson.D{{Key: "_id", Value: asset2}}),
			mtest.CreateSuccessResponse(), // run insert
			cursorOf(),                    // settings
			mtest.CreateSuccessResponse(), // notifications
			mtest.CreateSuccessResponse(), // audit log
		)

		started, err := RunDueAudits(context.Background(), now)
		require.NoError(mt, err)
		assert.Equal(mt, 1, started)

		claims := sent(mt, "update", database.ScheduledAudits)
		require.Len(mt, claims, 2)
		claim := claims[1]
		assert.True(mt, lookup(mt.T, claim, "updates", "0", "q", "nextRunAt").Time().Equal(lastDue))
		assert.True(mt, lookup(mt.T, claim, "updates", "0", "u", "$set", "lastRunAt").Time().Equal(now))
		next := lookup(mt.T, claim, "updates", "0", "u", "$set", "nextRunAt").Time()
		assert.True(mt, next.Equal(now.AddDate(0, 0, 6)), "nextRunAt = %v", next)

		runs := sent(mt, "insert", database.ScheduledAuditRuns)
		require.Len(mt, runs, 1)
		assert.Equal(mt, models.RunPending, lookupString(mt.T, runs[0], "documents", "0", "status"))
		assert.Equal(mt, schedulerTrigger, lookupString(mt.T, runs[0], "documents", "0", "triggeredBy"))
		assert.Equal(mt, []primitive.ObjectID{asset1, asset2}, lookupIDs(mt.T, runs[0], "documents", "0", "assetIds"))

		notes := sent(mt, "insert", database.Notifications)
		require.Len(mt, notes, 1)
		assert.Equal(mt, auditor, lookup(mt.T, notes[0], "documents", "0", "userId").ObjectID())
	})
}

func auditRunDoc(id primitive.ObjectID, status string, assets []primitive.ObjectID, findings bson.A) bson.D {
	ids := bson.A{}
	for _, a := range assets {
		ids = append(ids, a)
	}
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "scheduledAuditId", Value: primitive.NewObjectID()},
		{Key: "name", Value: "Store audit 2024-06-03"},
		{Key: "status", Value: status},
		{Key: "triggeredBy", Value: schedulerTrigger},
		{Key: "assetIds", Value: ids},
		{Key: "findings", Value: findings},
		{Key: "startedAt", Value: time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)},
	}
}

func findingDoc(asset primitive.ObjectID, found bool, location string) bson.D {
	return bson.D{
		{Key: "assetId", Value: asset},
		{Key: "found", Value: found},
		{Key: "location", Value: location},
		{Key: "verifiedBy", Value: primitive.NewObjectID()},
		{Key: "verifiedAt", Value: time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)},
	}
}

func TestRecordFinding(t *testing.T) {
	mt := newMock(t)
	auditor := primitive.NewObjectID()
	asset1, asset2 := primitive.NewObjectID(), primitive.NewObjectID()

	mt.Run("first finding is appended", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		runID := primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(auditRunDoc(runID, models.RunPending, []primitive.ObjectID{asset1, asset2}, bson.A{})),
			matched(0), // no finding to replace yet
			matched(1),
			matched(1), // lastAuditedAt
			mtest.CreateSuccessResponse(),
		)

		body := map[string]interface{}{"assetId": asset1.Hex(), "found": true, "location": "Store B"}
		rec := httptest.NewRecorder()
		RecordFinding(rec, request(http.MethodPost, "/", body, map[string]string{"id": runID.Hex()}, auditor, models.RoleAuditor))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())

		var run models.ScheduledAuditRun
		decodeBody(mt.T, rec, &run)
		assert.Equal(mt, models.RunInProgress, run.Status)
		assert.Len(mt, run.Findings, 1)
		assert.Equal(mt, models.RunSummary{Total: 2, Verified: 1, Pending: 1}, run.Summary)

		updates := sent(mt, "update", database.ScheduledAuditRuns)
		require.Len(mt, updates, 2)
		assert.Equal(mt, asset1, lookup(mt.T, updates[1], "updates", "0", "u", "$push", "findings", "assetId").ObjectID())
		assert.Len(mt, sent(mt, "update", database.Assets), 1)
	})

	cases := []struct {
		name   string
		status string
		asset  primitive.ObjectID
	}{
		{"completed run", models.RunCompleted, asset1},
		{"asset outside snapshot", models.RunInProgress, primitive.NewObjectID()},
	}
	for _, c := range cases {
		mt.Run(c.name, func(mt *mtest.T) {
			UseDatabase(mt.DB)
			runID := primitive.NewObjectID()
			mt.AddMockResponses(cursorOf(auditRunDoc(runID, c.status, []primitive.ObjectID{asset1, asset2}, bson.A{})))

			body := map[string]interface{}{"assetId": c.asset.Hex(), "found": true}
			rec := httptest.NewRecorder()
			RecordFinding(rec, request(http.MethodPost, "/", body, map[string]string{"id": runID.Hex()}, auditor, models.RoleAuditor))
			assert.Equal(mt, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Empty(mt, sent(mt, "update", database.ScheduledAuditRuns))
		})
	}
}

func TestCompleteAuditRun(t *testing.T) {
	mt := newMock(t)
	auditor := primitive.NewObjectID()
	found, missing, pending := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	assets := []primitive.ObjectID{found, missing, pending}
	findings := bson.A{findingDoc(found, true, "Store A"), findingDoc(missing, false, "")}
	registered := cursorOf(
		bson.D{{Key: "_id", Value: found}, {Key: "location", Value: "Store A"}, {Key: "condition", Value: models.ConditionGood}},
		bson.D{{Key: "_id", Value: missing}, {Key: "location", Value: "Store A"}, {Key: "condition", Value: models.ConditionGood}},
		bson.D{{Key: "_id", Value: pending}, {Key: "location", Value: "Store A"}, {Key: "condition", Value: models.ConditionGood}},
	)

	mt.Run("missing assets marked lost on request", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		runID := primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(auditRunDoc(runID, models.RunInProgress, assets, findings)),
			registered,
			modifiedTo(auditRunDoc(runID, models.RunCompleted, assets, findings)),
			matched(1),
			mtest.CreateSuccessResponse(),
			cursorOf(), // no reviewers to notify
		)

		rec := httptest.NewRecorder()
		CompleteAuditRun(rec, request(http.MethodPost, "/", map[string]bool{"markMissingLost": true},
			map[string]string{"id": runID.Hex()}, auditor, models.RoleAuditor))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())

		closes := sent(mt, "findAndModify", database.ScheduledAuditRuns)
		require.Len(mt, closes, 1)
		var summary models.RunSummary
		require.NoError(mt, lookup(mt.T, closes[0], "update", "$set", "summary").Unmarshal(&summary))
		assert.Equal(mt, models.RunSummary{Total: 3, Verified: 1, Missing: 1, Pending: 1}, summary)

		lost := sent(mt, "update", database.Assets)
		require.Len(mt, lost, 1)
		assert.Equal(mt, []primitive.ObjectID{missing}, lookupIDs(mt.T, lost[0], "updates", "0", "q", "_id", "$in"))
		assert.Equal(mt, models.AssetLost, lookupString(mt.T, lost[0], "updates", "0", "u", "$set", "status"))
	})

	mt.Run("missing assets untouched by default", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		runID := primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(auditRunDoc(runID, models.RunInProgress, assets, findings)),
			registered,
			modifiedTo(auditRunDoc(runID, models.RunCompleted, assets, findings)),
			mtest.CreateSuccessResponse(),
			cursorOf(),
		)

		rec := httptest.NewRecorder()
		CompleteAuditRun(rec, request(http.MethodPost, "/", nil, map[string]string{"id": runID.Hex()}, auditor, models.RoleAuditor))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())
		assert.Empty(mt, sent(mt, "update", database.Assets))
	})

	mt.Run("already completed", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		runID := primitive.NewObjectID()
		mt.AddMockResponses(cursorOf(auditRunDoc(runID, models.RunCompleted, assets, findings)))

		rec := httptest.NewRecorder()
		CompleteAuditRun(rec, request(http.MethodPost, "/", nil, map[string]string{"id": runID.Hex()}, auditor, models.RoleAuditor))
		assert.Equal(mt, http.StatusConflict, rec.Code)
	})
}

func approvalOf(id, entity, requester primitive.ObjectID, kind, status string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "type", Value: kind},
		{Key: "title", Value: "Request for AST-7"},
		{Key: "status", Value: status},
		{Key: "entityType", Value: kind},
		{Key: "entityId", Value: entity},
		{Key: "requestedBy", Value: requester},
		{Key: "createdAt", Value: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
}

func assetDoc(id primitive.ObjectID, status, condition string, assignedTo *primitive.ObjectID) bson.D {
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "assetTag", Value: "AST-7"},
		{Key: "name", Value: "Office chair"},
		{Key: "category", Value: "Furniture"},
		{Key: "location", Value: "Floor 1"},
		{Key: "status", Value: status},
		{Key: "condition", Value: condition},
	}
	if assignedTo != nil {
		doc = append(doc, bson.E{Key: "assignedTo", Value: *assignedTo})
	}
	return doc
}

func TestApproveAppliesOutcome(t *testing.T) {
	mt := newMock(t)
	requester, reviewer := primitive.NewObjectID(), primitive.NewObjectID()

	mt.Run("transfer reassigns the asset", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		approvalID, transferID, assetID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
		holder, receiver := primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(approvalOf(approvalID, transferID, requester, models.ApprovalTransfer, models.ApprovalPending)),
			modifiedTo(approvalOf(approvalID, transferID, requester, models.ApprovalTransfer, models.ApprovalApproved)),
			cursorOf(bson.D{
				{Key: "_id", Value: transferID}, {Key: "assetId", Value: assetID},
				{Key: "fromUserId", Value: holder}, {Key: "toUserId", Value: receiver},
				{Key: "toLocation", Value: "Floor 3"}, {Key: "status", Value: models.TransferPending},
			}),
			cursorOf(assetDoc(assetID, models.AssetAssigned, models.ConditionGood, &holder)),
			matched(1), // asset
			matched(1), // transfer
			mtest.CreateSuccessResponse(),
			cursorOf(),
			mtest.CreateSuccessResponse(),
		)

		rec := httptest.NewRecorder()
		ApproveApproval(rec, request(http.MethodPost, "/", nil, map[string]string{"id": approvalID.Hex()}, reviewer, models.RoleInventoryManager))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())

		moved := sent(mt, "update", database.Assets)
		require.Len(mt, moved, 1)
		assert.Equal(mt, receiver, lookup(mt.T, moved[0], "updates", "0", "u", "$set", "assignedTo").ObjectID())
		assert.Equal(mt, models.AssetAssigned, lookupString(mt.T, moved[0], "updates", "0", "u", "$set", "status"))
		assert.Equal(mt, "Floor 3", lookupString(mt.T, moved[0], "updates", "0", "u", "$set", "location"))

		transfers := sent(mt, "update", database.Transfers)
		require.Len(mt, transfers, 1)
		assert.Equal(mt, models.TransferCompleted, lookupString(mt.T, transfers[0], "updates", "0", "u", "$set", "status"))
	})

	mt.Run("disposal retires the asset", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		approvalID, disposalID, assetID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
		holder := primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(approvalOf(approvalID, disposalID, requester, models.ApprovalDisposal, models.ApprovalPending)),
			modifiedTo(approvalOf(approvalID, disposalID, requester, models.ApprovalDisposal, models.ApprovalApproved)),
			cursorOf(bson.D{
				{Key: "_id", Value: disposalID}, {Key: "assetId", Value: assetID},
				{Key: "method", Value: "scrap"}, {Key: "status", Value: models.DisposalPending},
			}),
			cursorOf(assetDoc(assetID, models.AssetDeadStock, models.ConditionPoor, &holder)),
			matched(1),
			matched(1),
			mtest.CreateSuccessResponse(),
			cursorOf(),
			mtest.CreateSuccessResponse(),
		)

		rec := httptest.NewRecorder()
		ApproveApproval(rec, request(http.MethodPost, "/", nil, map[string]string{"id": approvalID.Hex()}, reviewer, models.RoleAdmin))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())

		retired := sent(mt, "update", database.Assets)
		require.Len(mt, retired, 1)
		assert.Equal(mt, models.AssetDisposed, lookupString(mt.T, retired[0], "updates", "0", "u", "$set", "status"))
		lookup(mt.T, retired[0], "updates", "0", "u", "$unset", "assignedTo")

		disposals := sent(mt, "update", database.Disposals)
		require.Len(mt, disposals, 1)
		assert.Equal(mt, models.DisposalCompleted, lookupString(mt.T, disposals[0], "updates", "0", "u", "$set", "status"))
		assert.Equal(mt, reviewer, lookup(mt.T, disposals[0], "updates", "0", "u", "$set", "approvedBy").ObjectID())
	})

	mt.Run("failed outcome reopens the approval", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		approvalID, disposalID, assetID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(approvalOf(approvalID, disposalID, requester, models.ApprovalDisposal, models.ApprovalPending)),
			modifiedTo(approvalOf(approvalID, disposalID, requester, models.ApprovalDisposal, models.ApprovalApproved)),
			cursorOf(bson.D{
				{Key: "_id", Value: disposalID}, {Key: "assetId", Value: assetID},
				{Key: "method", Value: "scrap"}, {Key: "status", Value: models.DisposalPending},
			}),
			cursorOf(assetDoc(assetID, models.AssetDisposed, models.ConditionPoor, nil)),
			matched(1),
		)

		rec := httptest.NewRecorder()
		ApproveApproval(rec, request(http.MethodPost, "/", nil, map[string]string{"id": approvalID.Hex()}, reviewer, models.RoleAdmin))
		assert.Equal(mt, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

		reverts := sent(mt, "update", database.Approvals)
		require.Len(mt, reverts, 1)
		assert.Equal(mt, models.ApprovalPending, lookupString(mt.T, reverts[0], "updates", "0", "u", "$set", "status"))
		assert.Empty(mt, sent(mt, "update", database.Assets))
	})
}

func TestRequestsRejectPendingDuplicates(t *testing.T) {
	mt := newMock(t)
	caller := primitive.NewObjectID()

	mt.Run("transfer", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		assetID := primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(assetDoc(assetID, models.AssetAvailable, models.ConditionGood, nil)),
			countOf(1),
		)

		body := map[string]string{"assetId": assetID.Hex(), "toLocation": "Floor 2", "reason": "team moved"}
		rec := httptest.NewRecorder()
		RequestTransfer(rec, request(http.MethodPost, "/api/transfers", body, nil, caller, models.RoleInventoryManager))
		assert.Equal(mt, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Empty(mt, sent(mt, "insert", database.Transfers))
		assert.Empty(mt, sent(mt, "insert", database.Approvals))
	})

	mt.Run("disposal", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		assetID := primitive.NewObjectID()
		mt.AddMockResponses(
			cursorOf(assetDoc(assetID, models.AssetAvailable, models.ConditionDamaged, nil)),
			countOf(1),
		)

		body := map[string]string{"assetId": assetID.Hex(), "method": "scrap", "reason": "broken frame"}
		rec := httptest.NewRecorder()
		RequestDisposal(rec, request(http.MethodPost, "/api/disposals", body, nil, caller, models.RoleInventoryManager))
		assert.Equal(mt, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Empty(mt, sent(mt, "insert", database.Disposals))
	})

	mt.Run("disposal of a healthy asset", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		assetID := primitive.NewObjectID()
		mt.AddMockResponses(cursorOf(assetDoc(assetID, models.AssetAvailable, models.ConditionGood, nil)))

		body := map[string]string{"assetId": assetID.Hex(), "method": "scrap", "reason": "old"}
		rec := httptest.NewRecorder()
		RequestDisposal(rec, request(http.MethodPost, "/api/disposals", body, nil, caller, models.RoleInventoryManager))
		assert.Equal(mt, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	})
}

func TestUserAccountGuards(t *testing.T) {
	mt := newMock(t)
	admin := primitive.NewObjectID()

	mt.Run("cannot delete self", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		rec := httptest.NewRecorder()
		DeleteUser(rec, request(http.MethodDelete, "/", nil, map[string]string{"id": admin.Hex()}, admin, models.RoleAdmin))
		assert.Equal(mt, http.StatusBadRequest, rec.Code)
		assert.Empty(mt, sent(mt, "delete", database.Users))
	})

	mt.Run("cannot deactivate self", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		rec := httptest.NewRecorder()
		UpdateUser(rec, request(http.MethodPut, "/", map[string]bool{"isActive": false},
			map[string]string{"id": admin.Hex()}, admin, models.RoleAdmin))
		assert.Equal(mt, http.StatusBadRequest, rec.Code)
		assert.Empty(mt, sent(mt, "findAndModify", database.Users))
	})

	mt.Run("user with assigned assets", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		mt.AddMockResponses(countOf(2))

		rec := httptest.NewRecorder()
		DeleteUser(rec, request(http.MethodDelete, "/", nil, map[string]string{"id": primitive.NewObjectID().Hex()}, admin, models.RoleAdmin))
		assert.Equal(mt, http.StatusConflict, rec.Code, rec.Body.String())
		assert.Empty(mt, sent(mt, "delete", database.Users))
	})

	mt.Run("unknown user", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		mt.AddMockResponses(countOf(0), mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		rec := httptest.NewRecorder()
		DeleteUser(rec, request(http.MethodDelete, "/", nil, map[string]string{"id": primitive.NewObjectID().Hex()}, admin, models.RoleAdmin))
		assert.Equal(mt, http.StatusNotFound, rec.Code)
	})
}

func TestReceivePurchaseOrderRollsBackOnAssetFailure(t *testing.T) {
	mt := newMock(t)

	mt.Run("insert failure", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		poID := primitive.NewObjectID()
		order := func(status string) bson.D {
			return bson.D{
				{Key: "_id", Value: poID},
				{Key: "poNumber", Value: "PO-202406-ABC"},
				{Key: "vendorId", Value: primitive.NewObjectID()},
				{Key: "status", Value: status},
				{Key: "items", Value: bson.A{bson.D{
					{Key: "description", Value: "Chair"},
					{Key: "quantity", Value: int32(2)},
					{Key: "unitPrice", Value: 50.0},
				}}},
			}
		}
		mt.AddMockResponses(
			cursorOf(order(models.POOrdered)),
			modifiedTo(order(models.POReceived)),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 1, Code: 11000, Message: "duplicate key"}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			matched(1),
		)

		rec := httptest.NewRecorder()
		ReceivePurchaseOrder(rec, request(http.MethodPost, "/", map[string]bool{"createAssets": true},
			map[string]string{"id": poID.Hex()}, primitive.NewObjectID(), models.RoleInventoryManager))
		assert.Equal(mt, http.StatusInternalServerError, rec.Code)

		inserts := sent(mt, "insert", database.Assets)
		require.Len(mt, inserts, 1)
		var inserted []bson.Raw
		require.NoError(mt, lookup(mt.T, inserts[0], "documents").Unmarshal(&inserted))

		cleanup := sent(mt, "delete", database.Assets)
		require.Len(mt, cleanup, 1)
		assert.Len(mt, lookupIDs(mt.T, cleanup[0], "deletes", "0", "q", "_id", "$in"), len(inserted))

		reverts := sent(mt, "update", database.PurchaseOrders)
		require.Len(mt, reverts, 1)
		assert.Equal(mt, models.POReceived, lookupString(mt.T, reverts[0], "updates", "0", "q", "status"))
		assert.Equal(mt, models.POOrdered, lookupString(mt.T, reverts[0], "updates", "0", "u", "$set", "status"))
		lookup(mt.T, reverts[0], "updates", "0", "u", "$unset", "receivedAt")

		assert.Empty(mt, sent(mt, "insert", database.AuditLogs))
	})
}

func TestNotifyUsersHonoursInAppSetting(t *testing.T) {
	mt := newMock(t)
	recipients := []primitive.ObjectID{primitive.NewObjectID(), primitive.NewObjectID()}

	capture := func(t *testing.T) *[]primitive.ObjectID {
		var dropped []primitive.ObjectID
		orig := dropDashboards
		dropDashboards = func(_ context.Context, ids ...primitive.ObjectID) { dropped = append(dropped, ids...) }
		t.Cleanup(func() { dropDashboards = orig })
		return &dropped
	}

	mt.Run("switched off", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		dropped := capture(mt.T)
		mt.AddMockResponses(cursorOf(bson.D{
			{Key: "_id", Value: models.SettingsID},
			{Key: "notifications", Value: bson.D{{Key: "inApp", Value: false}}},
		}))

		notifyUsers(context.Background(), recipients, "", "Audit run started", "ready", "info", "")
		assert.Empty(mt, sent(mt, "insert", database.Notifications))
		assert.Empty(mt, *dropped)
	})

	mt.Run("default on", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		dropped := capture(mt.T)
		mt.AddMockResponses(cursorOf(), mtest.CreateSuccessResponse())

		notifyUsers(context.Background(), recipients, "", "Audit run started", "ready", "info", "")
		inserts := sent(mt, "insert", database.Notifications)
		require.Len(mt, inserts, 1)
		var docs []bson.Raw
		require.NoError(mt, lookup(mt.T, inserts[0], "documents").Unmarshal(&docs))
		assert.Len(mt, docs, 2)
		assert.Equal(mt, recipients, *dropped, "cached unread counts are dropped")
	})
}

func TestMarkNotificationsReadDropsCachedDashboard(t *testing.T) {
	mt := newMock(t)
	user := primitive.NewObjectID()

	cases := []struct {
		name     string
		modified int
		want     []primitive.ObjectID
	}{
		{"unread notifications", 3, []primitive.ObjectID{user}},
		{"nothing unread", 0, nil},
	}
	for _, c := range cases {
		mt.Run(c.name, func(mt *mtest.T) {
			UseDatabase(mt.DB)
			var dropped []primitive.ObjectID
			orig := dropDashboards
			dropDashboards = func(_ context.Context, ids ...primitive.ObjectID) { dropped = append(dropped, ids...) }
			defer func() { dropDashboards = orig }()
			mt.AddMockResponses(matched(c.modified))

			rec := httptest.NewRecorder()
			MarkAllNotificationsRead(rec, request(http.MethodPost, "/", nil, nil, user, models.RoleEmployee))
			require.Equal(mt, http.StatusOK, rec.Code)
			assert.Equal(mt, c.want, dropped)
		})
	}

	mt.Run("single already read", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		called := false
		orig := dropDashboards
		dropDashboards = func(context.Context, ...primitive.ObjectID) { called = true }
		defer func() { dropDashboards = orig }()
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 0}))

		rec := httptest.NewRecorder()
		MarkNotificationRead(rec, request(http.MethodPost, "/", nil,
			map[string]string{"id": primitive.NewObjectID().Hex()}, user, models.RoleEmployee))
		require.Equal(mt, http.StatusOK, rec.Code)
		assert.False(mt, called)
	})
}

func TestUpdateSettingsValidation(t *testing.T) {
	cases := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{"empty name", map[string]interface{}{"organizationName": ""}, "organizationName must be at least 1"},
		{"currency length", map[string]interface{}{"currency": "EURO"}, "currency must be exactly 3 characters"},
		{"threshold", map[string]interface{}{"deadStockThresholdDays": 0}, "deadStockThresholdDays must be at least 1"},
		{"reminder", map[string]interface{}{"auditReminderDays": 400}, "auditReminderDays must be at most 365"},
		{"method", map[string]interface{}{"depreciationMethod": "declining"}, "depreciationMethod must be one of [straight_line none]"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		UpdateSettings(rec, request(http.MethodPut, "/api/settings", c.body, nil, primitive.NewObjectID(), models.RoleAdmin))
		assert.Equal(t, http.StatusBadRequest, rec.Code, c.name)
		assert.Contains(t, rec.Body.String(), c.want, c.name)
	}
}

func TestGetUpcomingScheduledAudits(t *testing.T) {
	mt := newMock(t)

	mt.Run("window from settings", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		mt.AddMockResponses(
			cursorOf(bson.D{{Key: "_id", Value: models.SettingsID}, {Key: "auditReminderDays", Value: 5}}),
			cursorOf(bson.D{
				{Key: "_id", Value: primitive.NewObjectID()}, {Key: "name", Value: "Quarterly count"},
				{Key: "frequency", Value: models.FrequencyQuarterly}, {Key: "isActive", Value: true},
				{Key: "nextRunAt", Value: time.Now().UTC().Add(48 * time.Hour)},
			}),
		)

		before := time.Now().UTC()
		rec := httptest.NewRecorder()
		GetUpcomingScheduledAudits(rec, request(http.MethodGet, "/api/scheduled-audits/upcoming", nil, nil, primitive.NilObjectID, ""))
		require.Equal(mt, http.StatusOK, rec.Code, rec.Body.String())

		var audits []models.ScheduledAudit
		decodeBody(mt.T, rec, &audits)
		assert.Len(mt, audits, 1)

		finds := sent(mt, "find", database.ScheduledAudits)
		require.Len(mt, finds, 1)
		until := lookup(mt.T, finds[0], "filter", "nextRunAt", "$lte").Time()
		assert.WithinDuration(mt, before.AddDate(0, 0, 5), until, time.Minute)
	})

	mt.Run("bad days", func(mt *mtest.T) {
		UseDatabase(mt.DB)
		rec := httptest.NewRecorder()
		GetUpcomingScheduledAudits(rec, request(http.MethodGet, "/api/scheduled-audits/upcoming?days=0", nil, nil, primitive.NilObjectID, ""))
		assert.Equal(mt, http.StatusBadRequest, rec.Code)
	})
}

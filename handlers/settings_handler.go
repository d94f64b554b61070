package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"deadstock/models"
	"deadstock/utils"
)

// loadSettings returns the stored settings, or the defaults before the first save.
func loadSettings(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()
	err := settingsCollection.FindOne(ctx, bson.M{"_id": models.SettingsID}).Decode(&settings)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return models.Settings{}, err
	}
	return settings, nil
}

func GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	settings, err := loadSettings(ctx)
	if err != nil {
		respondServiceError(w, err, "failed to load settings")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings merges the provided fields into the stored document.
func UpdateSettings(w http.ResponseWriter, r *http.Request) {
	info, ok := utils.MustAuth(w, r)
	if !ok {
		return
	}

	var patch models.SettingsPatch
	if err := utils.ParseJSON(r, &patch); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	if err := utils.ValidateStruct(patch); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	current, err := loadSettings(ctx)
	if err != nil {
		respondServiceError(w, err, "failed to load settings")
		return
	}
	merged := patch.Apply(current)
	merged.ID = models.SettingsID
	merged.UpdatedBy = info.Email
	merged.UpdatedAt = time.Now().UTC()

	if _, err := settingsCollection.ReplaceOne(ctx, bson.M{"_id": models.SettingsID}, merged,
		options.Replace().SetUpsert(true)); err != nil {
		respondServiceError(w, err, "failed to save settings")
		return
	}

	recordAudit(ctx, r, "settings_update", "settings", primitive.NilObjectID, bson.M{"settings": merged})
	utils.RespondWithJSON(w, http.StatusOK, merged)
}

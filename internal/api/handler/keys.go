package handler

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	mw "github.com/sajagana/pcvgate/internal/api/middleware"
	"github.com/sajagana/pcvgate/internal/api/response"
	"github.com/sajagana/pcvgate/internal/store"
	"github.com/sajagana/pcvgate/pkg/models"
)

const rawKeyBytes = 24

// KeysHandler serves API key administration.
type KeysHandler struct {
	store store.Store
}

func NewKeysHandler(s store.Store) *KeysHandler {
	return &KeysHandler{store: s}
}

type createKeyRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type createKeyResponse struct {
	models.APIKey

	// Key is the raw API key, returned exactly once at creation.
	Key string `json:"key"`
}

// Create handles POST /api/v1/admin/keys.
func (h *KeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return
	}
	if req.Name == "" {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "name is required", nil)
		return
	}
	if len(req.Scopes) == 0 {
		req.Scopes = []string{"validations"}
	}

	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant context", nil)
		return
	}

	rawKey, err := generateRawKey()
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to generate key", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to hash key", nil)
		return
	}

	now := time.Now().UTC()
	key := &models.APIKey{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      req.Name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:8],
		Scopes:    req.Scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			response.Error(w, http.StatusConflict, "CONFLICT", "An API key with that name already exists", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
		return
	}

	response.Created(w, createKeyResponse{APIKey: *key, Key: rawKey})
}

// List handles GET /api/v1/admin/keys.
func (h *KeysHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant context", nil)
		return
	}

	keys, err := h.store.ListAPIKeys(r.Context(), tenantID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list keys", nil)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	response.JSON(w, keys)
}

// Revoke handles DELETE /api/v1/admin/keys/{keyID}.
func (h *KeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid key id", nil)
		return
	}

	tenantID, ok := mw.GetTenantID(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing tenant context", nil)
		return
	}

	if err := h.store.RevokeAPIKey(r.Context(), id, tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "API key not found", nil)
			return
		}
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to revoke key", nil)
		return
	}

	response.JSON(w, map[string]any{"revoked": true})
}

func generateRawKey() (string, error) {
	buf := make([]byte, rawKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "pcv_" + hex.EncodeToString(buf), nil
}

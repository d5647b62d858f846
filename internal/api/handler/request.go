package handler

import (
	"encoding/json"
	"net/http"

	"github.com/anheplast/curiosmaze/internal/api/middleware"
	"github.com/anheplast/curiosmaze/internal/common"
)

const maxBodyBytes = 2 << 20

// decodeJSON answers 400 itself and reports false when the body is not valid JSON for dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		common.RespondWithError(w, http.StatusBadRequest, "Invalid request payload: "+err.Error())
		return false
	}
	return true
}

// currentUser is the authenticated user, or "" for anonymous requests.
func currentUser(r *http.Request) string {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	return userID
}

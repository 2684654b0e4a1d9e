package hr

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/txn2/secure-agent/pkg/auth"
	"github.com/txn2/secure-agent/pkg/httpapi"
)

// RoleOfficeManagement is the client role required to look up another
// person's days off.
const RoleOfficeManagement = "office_management"

// Handler exposes the HR REST API.
type Handler struct {
	mux   *http.ServeMux
	store Store
}

// NewHandler creates the HR API handler. The verifier gates every route;
// /daysOffFor additionally requires the office_management role.
func NewHandler(store Store, verifier httpapi.TokenVerifier) *Handler {
	h := &Handler{
		mux:   http.NewServeMux(),
		store: store,
	}

	requireAuth := httpapi.RequireAuth(verifier)
	requireRole := httpapi.RequireRole(verifier, RoleOfficeManagement)

	h.mux.Handle("POST /daysOff", requireAuth(http.HandlerFunc(h.daysOff)))
	h.mux.Handle("POST /daysOffFor", requireRole(http.HandlerFunc(h.daysOffFor)))

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// daysOffResponse is returned by POST /daysOff.
type daysOffResponse struct {
	DaysOffAvailable int `json:"days_off_available"`
}

// daysOffForRequest is the body of POST /daysOffFor.
type daysOffForRequest struct {
	PersonName string `json:"person_name"`
}

// daysOffForResponse is returned by POST /daysOffFor. AskedBy records the
// identity of the caller for the audit trail.
type daysOffForResponse struct {
	DaysOffAvailable int    `json:"days_off_available"`
	PersonName       string `json:"person_name"`
	AskedBy          string `json:"asked_by"`
}

// daysOff handles POST /daysOff.
//
// @Summary      Returns number of days off you have left
// @Description  Uses the user in the token to determine the available days off.
// @Tags         HR
// @Produce      json
// @Success      200  {object}  daysOffResponse
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /daysOff [post]
func (h *Handler) daysOff(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	days, err := h.store.DaysOff(r.Context(), identity.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusBadRequest, "User not found in database.")
			return
		}
		slog.Error("hr: days-off lookup failed", "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, daysOffResponse{DaysOffAvailable: days})
}

// daysOffFor handles POST /daysOffFor.
//
// @Summary      Returns number of days off for the specified person
// @Description  Requires the office_management role. The response records who asked.
// @Tags         HR
// @Accept       json
// @Produce      json
// @Param        request  body      daysOffForRequest  true  "person to look up"
// @Success      200  {object}  daysOffForResponse
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Security     BearerAuth
// @Router       /daysOffFor [post]
func (h *Handler) daysOffFor(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	var req daysOffForRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PersonName == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "person_name is required")
		return
	}

	days, err := h.store.DaysOff(r.Context(), req.PersonName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpapi.WriteError(w, http.StatusBadRequest, req.PersonName+" not found in database.")
			return
		}
		slog.Error("hr: days-off lookup failed", "person", req.PersonName, "error", err)
		httpapi.WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, daysOffForResponse{
		DaysOffAvailable: days,
		PersonName:       req.PersonName,
		AskedBy:          identity.Name,
	})
}

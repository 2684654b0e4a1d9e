package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/txn2/secure-agent/pkg/auth"
	"github.com/txn2/secure-agent/pkg/httpapi"
)

// DaysOffClient looks up the caller's days-off balance from the HR service,
// authenticated with the caller's own forwarded token. hr.Client satisfies
// this interface.
type DaysOffClient interface {
	DaysOff(ctx context.Context, token string) (int, error)
}

// Handler exposes the agent REST API.
type Handler struct {
	mux       *http.ServeMux
	sessions  *SessionStore
	completer Completer
	hrClient  DaysOffClient
}

// HandlerConfig configures the agent handler.
type HandlerConfig struct {
	Sessions  *SessionStore
	Completer Completer

	// HRClient is optional; when set, a session's first turn is seeded
	// with the caller's days-off balance as system context.
	HRClient DaysOffClient
}

// NewHandler creates the agent API handler. The verifier gates every route.
func NewHandler(cfg HandlerConfig, verifier httpapi.TokenVerifier) *Handler {
	h := &Handler{
		mux:       http.NewServeMux(),
		sessions:  cfg.Sessions,
		completer: cfg.Completer,
		hrClient:  cfg.HRClient,
	}

	requireAuth := httpapi.RequireAuth(verifier)

	h.mux.Handle("POST /query", requireAuth(http.HandlerFunc(h.query)))
	h.mux.Handle("POST /reset", requireAuth(http.HandlerFunc(h.reset)))

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// queryRequest is the body of POST /query.
type queryRequest struct {
	Query string `json:"query"`
}

// queryResponse is returned by POST /query and POST /reset.
type queryResponse struct {
	Response string `json:"response"`
}

// query handles POST /query.
//
// @Summary      Ask the secure agent
// @Description  Sends a natural language query; the reply is produced from the caller's full conversation history.
// @Tags         Agent
// @Accept       json
// @Produce      json
// @Param        request  body      queryRequest  true  "the query"
// @Success      200  {object}  queryResponse
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Security     BearerAuth
// @Router       /query [post]
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		httpapi.WriteError(w, http.StatusBadRequest, "query is required")
		return
	}

	sess := h.sessions.GetOrCreate(identity.Name)

	// The session lock is held for the whole query-response turn so
	// concurrent requests for the same identity cannot interleave appends.
	sess.Lock()
	defer sess.Unlock()

	if len(sess.history) == 0 {
		h.seedSession(r, sess, identity)
	}

	sess.Append(RoleUser, req.Query)

	reply, err := h.completer.Complete(r.Context(), sess.History())
	if err != nil {
		slog.Error("agent: completion failed", "user", identity.Name, "error", err)
		if errors.Is(err, ErrCompletionUnavailable) {
			httpapi.WriteError(w, http.StatusBadGateway, "completion engine unavailable")
			return
		}
		httpapi.WriteError(w, http.StatusInternalServerError, "completion failed")
		return
	}

	sess.Append(RoleAssistant, reply)

	httpapi.WriteJSON(w, http.StatusOK, queryResponse{Response: reply})
}

// seedSession injects system context at the start of a fresh conversation.
// Enrichment is best-effort: an HR lookup failure is logged and skipped.
// Caller must hold the session lock.
func (h *Handler) seedSession(r *http.Request, sess *Session, identity *auth.Identity) {
	sess.Append(RoleSystem, fmt.Sprintf(
		"You are an HR assistant. The authenticated user is %s.", identity.Name))

	if h.hrClient == nil {
		return
	}
	token := auth.GetToken(r.Context())
	days, err := h.hrClient.DaysOff(r.Context(), token)
	if err != nil {
		slog.Warn("agent: days-off enrichment failed", "user", identity.Name, "error", err)
		return
	}
	sess.Append(RoleSystem, fmt.Sprintf("The user has %d days off available.", days))
}

// reset handles POST /reset.
//
// @Summary      Reset the conversation
// @Description  Clears the caller's chat history.
// @Tags         Agent
// @Produce      json
// @Success      200  {object}  queryResponse
// @Failure      401  {object}  map[string]string
// @Security     BearerAuth
// @Router       /reset [post]
func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	identity := auth.GetIdentity(r.Context())

	sess := h.sessions.GetOrCreate(identity.Name)
	sess.Lock()
	sess.Clear()
	sess.Unlock()

	slog.Info("agent: session cleared", "user", identity.Name)

	httpapi.WriteJSON(w, http.StatusOK, queryResponse{
		Response: "Conversation history cleared for " + identity.Name + ".",
	})
}

package api

import (
	"net/http"

	"github.com/phrazzld/matrix-api/internal/domain"
	"github.com/phrazzld/matrix-api/internal/service"
)

// SuggestHandler handles AI prioritization requests.
type SuggestHandler struct {
	taskService *service.TaskService
}

// NewSuggestHandler creates a SuggestHandler backed by the given service.
func NewSuggestHandler(taskService *service.TaskService) *SuggestHandler {
	return &SuggestHandler{taskService: taskService}
}

// Suggest handles POST /ai/suggest. It returns quadrant placements for the
// user's open tasks, possibly served from cache when the AI dependency is
// unavailable.
func (h *SuggestHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return
	}

	suggestions, err := h.taskService.SuggestPriorities(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	RespondWithJSON(w, r, http.StatusOK, SuggestResponse{Suggestions: suggestions})
}

package api

import (
	"net/http"
	"strconv"
)

// @Summary      Get new events
// @Description  Retrieves events that occurred since a given event ID. Used for client-side cache synchronization.
// @Tags         events
// @Produce      json
// @Security     BearerAuth
// @Param        since  query     int  false  "The ID of the last event received. Omit or use 0 to get all events."
// @Success      200    {array}   models.Event
// @Failure      400    {object}  ErrorResponse
// @Failure      401    {string}  string "Unauthorized"
// @Failure      500    {object}  ErrorResponse
// @Router       /events [get]
func (s *Server) GetEventsHandler(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)

	sinceStr := r.URL.Query().Get("since")
	if sinceStr == "" {
		sinceStr = "0"
	}

	sinceID, err := strconv.ParseInt(sinceStr, 10, 64)
	if err != nil {
		writeBadRequest(w, "Invalid 'since' parameter, must be a number")
		return
	}

	events, err := s.events.GetEventsSince(r.Context(), caller.UserID, sinceID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

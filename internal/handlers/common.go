package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/tripreport/backend/internal/models"
	"github.com/tripreport/backend/internal/services"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeServiceError maps service errors to responses. Anything unrecognised
// is logged under tag and reported as fallback with a 500.
func writeServiceError(w http.ResponseWriter, tag string, err error, fallback string) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(verr.Fields))
	case errors.Is(err, services.ErrImageRejected):
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(map[string]string{
			"images": "Image was rejected by moderation",
		}))
	case errors.Is(err, services.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, models.NewErrorResponse("Unauthorized"))
	case errors.Is(err, services.ErrReportNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Report not found"))
	case errors.Is(err, services.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("User not found"))
	case errors.Is(err, services.ErrMessageNotFound):
		writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Message not found"))
	case errors.Is(err, services.ErrSelfMessage):
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("You cannot message yourself"))
	default:
		log.Printf("[%s] error=%v", tag, err)
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse(fallback))
	}
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return 0
	}
	return n
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adspot/internal/database"
	"adspot/internal/domain"
	"adspot/internal/metrics"
	"adspot/internal/models"
	"adspot/internal/service"
)

const defaultAvailabilityWindowDays = 13

func (s *HTTPServer) handlePlacements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("placements")

	writeJSON(w, http.StatusOK, map[string]any{"placements": s.inventory.Placements()})
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("availability")

	placement := pathSegment(r.URL.Path, "/api/v1/availability/")
	if placement == "" {
		writeError(w, http.StatusBadRequest, "placement is required")
		return
	}

	from := time.Now().Truncate(24 * time.Hour)
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
		from = parsed
	}

	to := from.AddDate(0, 0, defaultAvailabilityWindowDays)
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := time.Parse(models.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
			return
		}
		to = parsed
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}

	entries, err := s.inventory.Availability(r.Context(), placement, from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"placement": placement,
		"from":      from.Format(models.DateLayout),
		"to":        to.Format(models.DateLayout),
		"slots":     entries,
	})
}

func (s *HTTPServer) handleSold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("sold")

	placement := pathSegment(r.URL.Path, "/api/v1/sold/")
	if placement == "" {
		writeError(w, http.StatusBadRequest, "placement is required")
		return
	}

	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := time.Parse(models.DateLayout, dateStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	sold, err := s.inventory.SoldForDate(r.Context(), placement, date, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"placement": placement,
		"date":      dateStr,
		"banners":   sold,
	})
}

type slotItemRequest struct {
	Date     string `json:"date"`
	Position int64  `json:"position"`
}

type reserveRequest struct {
	ApplicantID    int64             `json:"applicant_id"`
	Placement      string            `json:"placement"`
	Title          string            `json:"title"`
	ImageURL       string            `json:"image_url"`
	LinkURL        string            `json:"link_url"`
	Items          []slotItemRequest `json:"items"`
	TTLMinutes     int               `json:"ttl_minutes"`
	IdempotencyKey string            `json:"idempotency_key"`
}

func (s *HTTPServer) handleApplications(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleReserve(w, r)
	case http.MethodGet:
		s.handleListApplications(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reserve")

	var body reserveRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.ApplicantID == 0 {
		writeError(w, http.StatusBadRequest, "applicant_id is required")
		return
	}

	items := make([]models.SlotItem, 0, len(body.Items))
	for _, item := range body.Items {
		date, err := time.Parse(models.DateLayout, item.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid item date; expected YYYY-MM-DD")
			return
		}
		items = append(items, models.SlotItem{Date: date, Position: item.Position})
	}

	input := domain.ReserveInput{
		ApplicantID:    body.ApplicantID,
		Placement:      body.Placement,
		Title:          body.Title,
		ImageURL:       body.ImageURL,
		LinkURL:        body.LinkURL,
		Items:          items,
		TTL:            time.Duration(body.TTLMinutes) * time.Minute,
		IdempotencyKey: body.IdempotencyKey,
	}

	result, err := s.reservations.Reserve(r.Context(), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"application": result.Application,
		"slot_ids":    result.SlotIDs,
		"replayed":    result.Replayed,
	})
}

func (s *HTTPServer) handleListApplications(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("applications_list")

	if raw := strings.TrimSpace(r.URL.Query().Get("applicant_id")); raw != "" {
		applicantID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid applicant_id")
			return
		}
		apps, err := s.reservations.GetApplicationsByApplicant(r.Context(), applicantID)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
		return
	}

	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "applicant_id or from/to range is required")
		return
	}
	from, err := time.Parse(models.DateLayout, fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse(models.DateLayout, toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}

	apps, err := s.reservations.GetApplicationsByDateRange(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (s *HTTPServer) handleApplicationByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/applications/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid application id")
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		s.handleGetApplication(w, r, id)
	case len(parts) == 2 && parts[1] == "slots" && r.Method == http.MethodGet:
		s.handleGetApplicationSlots(w, r, id)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		s.handleCancel(w, r, id)
	case len(parts) == 2 && parts[1] == "approve" && r.Method == http.MethodPost:
		s.handleApprove(w, r, id)
	case len(parts) == 2 && parts[1] == "reject" && r.Method == http.MethodPost:
		s.handleReject(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *HTTPServer) handleGetApplication(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("application_get")

	app, err := s.reservations.GetApplication(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"application": app})
}

func (s *HTTPServer) handleGetApplicationSlots(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("application_slots")

	slots, err := s.reservations.GetApplicationSlots(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"slots": slots})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("application_cancel")

	var body struct {
		ApplicantID int64 `json:"applicant_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApplicantID == 0 {
		writeError(w, http.StatusBadRequest, "applicant_id is required")
		return
	}

	if err := s.reservations.Release(r.Context(), id, body.ApplicantID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": models.StatusCancelled})
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("application_approve")

	var body struct {
		ApproverID int64 `json:"approver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApproverID == 0 {
		writeError(w, http.StatusBadRequest, "approver_id is required")
		return
	}

	banners, err := s.settlement.Commit(r.Context(), id, body.ApproverID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  models.StatusApproved,
		"banners": banners,
	})
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request, id int64) {
	metrics.IncHTTP("application_reject")

	var body struct {
		ApproverID int64 `json:"approver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ApproverID == 0 {
		writeError(w, http.StatusBadRequest, "approver_id is required")
		return
	}

	if err := s.settlement.Reject(r.Context(), id, body.ApproverID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": models.StatusRejected})
}

func (s *HTTPServer) handleCreateSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("slot_create")

	var body struct {
		Placement string `json:"placement"`
		Date      string `json:"date"`
		Position  int64  `json:"position"`
		Price     int64  `json:"price"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date, err := time.Parse(models.DateLayout, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	if body.Position <= 0 {
		writeError(w, http.StatusBadRequest, "position must be positive")
		return
	}
	if body.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}

	slot := &models.Slot{
		Placement: body.Placement,
		Date:      date,
		Position:  body.Position,
		Price:     body.Price,
	}
	if err := s.inventory.CreateSlot(r.Context(), slot); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"slot": slot})
}

func (s *HTTPServer) handleSlotPrice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPatch {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("slot_price")

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/slots/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "price" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	var body struct {
		Price int64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Price < 0 {
		writeError(w, http.StatusBadRequest, "price must not be negative")
		return
	}

	if err := s.inventory.UpdateSlotPrice(r.Context(), id, body.Price); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "price": body.Price})
}

func (s *HTTPServer) handleApplicationsReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("report")

	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "reports are disabled")
		return
	}

	fromStr := strings.TrimSpace(r.URL.Query().Get("from"))
	toStr := strings.TrimSpace(r.URL.Query().Get("to"))
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	from, err := time.Parse(models.DateLayout, fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	to, err := time.Parse(models.DateLayout, toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}

	buf, err := s.exporter.ApplicationsReport(r.Context(), from, to)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="applications.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func pathSegment(path, prefix string) string {
	seg := strings.TrimSpace(strings.TrimPrefix(path, prefix))
	if seg == "" || strings.Contains(seg, "/") {
		return ""
	}
	return seg
}

// writeDomainError translates storage and service errors into HTTP
// status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var unavailable *database.UnavailableSlotsError
	if errors.As(err, &unavailable) {
		items := make([]map[string]any, 0, len(unavailable.Items))
		for _, item := range unavailable.Items {
			items = append(items, map[string]any{
				"date":     item.Date.Format(models.DateLayout),
				"position": item.Position,
			})
		}
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "requested slots are unavailable",
			"placement": unavailable.Placement,
			"items":     items,
		})
		return
	}

	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, database.ErrSlotUnavailable),
		errors.Is(err, database.ErrSlotRaceLost),
		errors.Is(err, database.ErrInvalidState),
		errors.Is(err, database.ErrInconsistentLockState):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnknownPlacement),
		errors.Is(err, service.ErrNoItems),
		errors.Is(err, service.ErrDuplicateItem),
		errors.Is(err, service.ErrPastDate):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"adspot/internal/config"
	"adspot/internal/database"
	"adspot/internal/export"
	"adspot/internal/models"
	"adspot/internal/service"

	"github.com/rs/zerolog"
)

func testPlacements() []models.Placement {
	return []models.Placement{
		{Name: "main_page", Description: "Главная страница"},
		{Name: "catalog", Description: "Каталог"},
	}
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	if err != nil {
		t.Fatalf("new db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T, db *database.DB, cfg config.APIConfig) *httptest.Server {
	t.Helper()
	logger := zerolog.New(io.Discard)

	reservations := service.NewReservationService(db, nil, nil, testPlacements(), time.Hour, &logger)
	settlement := service.NewSettlementService(db, nil, nil, &logger)
	inventory := service.NewInventoryService(db, nil, testPlacements(), &logger)
	exporter := export.NewExporter(db, &logger)

	server := NewHTTPServer(cfg, inventory, reservations, settlement, exporter, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func openConfig() config.APIConfig {
	return config.APIConfig{Enabled: true, HTTP: config.APIHTTPConfig{Enabled: true}}
}

func seedSlot(t *testing.T, db *database.DB, placement string, date time.Time, position, price int64) *models.Slot {
	t.Helper()
	slot := &models.Slot{Placement: placement, Date: date, Position: position, Price: price}
	if err := db.CreateSlot(context.Background(), slot); err != nil {
		t.Fatalf("seed slot: %v", err)
	}
	return slot
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func futureDate(offset int) string {
	return time.Now().AddDate(0, 0, offset).Format(models.DateLayout)
}

func TestPlacementsEndpoint(t *testing.T) {
	ts := newTestServer(t, newTestDB(t), openConfig())

	resp, err := http.Get(ts.URL + "/api/v1/placements")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var body struct {
		Placements []models.Placement `json:"placements"`
	}
	decodeBody(t, resp, &body)
	if len(body.Placements) != 2 {
		t.Fatalf("expected 2 placements, got %d", len(body.Placements))
	}
}

func TestAvailabilityEndpoint(t *testing.T) {
	db := newTestDB(t)
	day, _ := time.Parse(models.DateLayout, futureDate(10))
	seedSlot(t, db, "main_page", day, 1, 5000000)
	seedSlot(t, db, "main_page", day, 2, 3000000)

	ts := newTestServer(t, db, openConfig())

	url := fmt.Sprintf("%s/api/v1/availability/main_page?from=%s&to=%s", ts.URL, futureDate(10), futureDate(10))
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var body struct {
		Slots []models.Availability `json:"slots"`
	}
	decodeBody(t, resp, &body)
	if len(body.Slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(body.Slots))
	}
	if body.Slots[0].Status != models.SlotAvailable {
		t.Fatalf("expected available slot, got %s", body.Slots[0].Status)
	}
}

func TestAvailabilityUnknownPlacement(t *testing.T) {
	ts := newTestServer(t, newTestDB(t), openConfig())

	resp, err := http.Get(ts.URL + "/api/v1/availability/sidebar")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func reserveBody(positions ...int64) map[string]any {
	items := make([]map[string]any, 0, len(positions))
	for _, p := range positions {
		items = append(items, map[string]any{"date": futureDate(10), "position": p})
	}
	return map[string]any{
		"applicant_id": 100,
		"placement":    "main_page",
		"title":        "Осенняя распродажа",
		"items":        items,
	}
}

func TestReserveCancelLifecycle(t *testing.T) {
	db := newTestDB(t)
	day, _ := time.Parse(models.DateLayout, futureDate(10))
	seedSlot(t, db, "main_page", day, 1, 5000000)
	seedSlot(t, db, "main_page", day, 2, 3000000)

	ts := newTestServer(t, db, openConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", reserveBody(1, 2))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created struct {
		Application models.Application `json:"application"`
		SlotIDs     []int64            `json:"slot_ids"`
		Replayed    bool               `json:"replayed"`
	}
	decodeBody(t, resp, &created)
	if created.Application.TotalAmount != 8000000 {
		t.Fatalf("expected total 8000000, got %d", created.Application.TotalAmount)
	}
	if len(created.SlotIDs) != 2 || created.Replayed {
		t.Fatalf("unexpected reserve result: %+v", created)
	}

	// Чужой вызов отмены отклоняется.
	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/applications/%d/cancel", ts.URL, created.Application.ID),
		map[string]any{"applicant_id": 999})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/v1/applications/%d/cancel", ts.URL, created.Application.ID),
		map[string]any{"applicant_id": 100})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	// Слоты снова доступны для брони.
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", reserveBody(1, 2))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected re-reserve 201, got %d", resp.StatusCode)
	}
}

func TestReserveConflictDetail(t *testing.T) {
	db := newTestDB(t)
	day, _ := time.Parse(models.DateLayout, futureDate(10))
	seedSlot(t, db, "main_page", day, 1, 5000000)

	ts := newTestServer(t, db, openConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", reserveBody(1))
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", reserveBody(1))
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	var conflict struct {
		Error string `json:"error"`
		Items []struct {
			Date     string `json:"date"`
			Position int64  `json:"position"`
		} `json:"items"`
	}
	decodeBody(t, resp, &conflict)
	if len(conflict.Items) != 1 || conflict.Items[0].Position != 1 {
		t.Fatalf("expected conflicting item detail, got %+v", conflict)
	}
}

func TestApproveFlow(t *testing.T) {
	db := newTestDB(t)
	day, _ := time.Parse(models.DateLayout, futureDate(10))
	seedSlot(t, db, "main_page", day, 1, 5000000)

	ts := newTestServer(t, db, openConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", reserveBody(1))
	var created struct {
		Application models.Application `json:"application"`
	}
	decodeBody(t, resp, &created)

	approveURL := fmt.Sprintf("%s/api/v1/applications/%d/approve", ts.URL, created.Application.ID)
	resp = doJSON(t, http.MethodPost, approveURL, map[string]any{"approver_id": 7})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var approved struct {
		Status  string          `json:"status"`
		Banners []models.Banner `json:"banners"`
	}
	decodeBody(t, resp, &approved)
	if approved.Status != models.StatusApproved || len(approved.Banners) != 1 {
		t.Fatalf("unexpected approve result: %+v", approved)
	}

	// Повторное подтверждение не проходит.
	resp = doJSON(t, http.MethodPost, approveURL, map[string]any{"approver_id": 7})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", resp.StatusCode)
	}

	soldURL := fmt.Sprintf("%s/api/v1/sold/main_page?date=%s", ts.URL, futureDate(10))
	resp, err := http.Get(soldURL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	var sold struct {
		Banners []models.SoldSlot `json:"banners"`
	}
	decodeBody(t, resp, &sold)
	if len(sold.Banners) != 1 || sold.Banners[0].Position != 1 {
		t.Fatalf("unexpected sold view: %+v", sold)
	}
}

func TestIdempotentReserveEndpoint(t *testing.T) {
	db := newTestDB(t)
	day, _ := time.Parse(models.DateLayout, futureDate(10))
	seedSlot(t, db, "main_page", day, 1, 5000000)

	ts := newTestServer(t, db, openConfig())

	body := reserveBody(1)
	body["idempotency_key"] = "req-1"

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", body)
	var first struct {
		Application models.Application `json:"application"`
	}
	decodeBody(t, resp, &first)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on replay, got %d", resp.StatusCode)
	}
	var second struct {
		Application models.Application `json:"application"`
		Replayed    bool               `json:"replayed"`
	}
	decodeBody(t, resp, &second)
	if !second.Replayed || second.Application.ID != first.Application.ID {
		t.Fatalf("expected replay of application %d, got %+v", first.Application.ID, second)
	}
}

func TestSlotProvisioningEndpoints(t *testing.T) {
	db := newTestDB(t)
	ts := newTestServer(t, db, openConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/slots", map[string]any{
		"placement": "catalog",
		"date":      futureDate(10),
		"position":  1,
		"price":     3000000,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created struct {
		Slot models.Slot `json:"slot"`
	}
	decodeBody(t, resp, &created)
	if created.Slot.ID == 0 || created.Slot.Status != models.SlotAvailable {
		t.Fatalf("unexpected slot: %+v", created.Slot)
	}

	priceURL := fmt.Sprintf("%s/api/v1/slots/%d/price", ts.URL, created.Slot.ID)
	resp = doJSON(t, http.MethodPatch, priceURL, map[string]any{"price": 4000000})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	slot, err := db.GetSlot(context.Background(), created.Slot.ID)
	if err != nil {
		t.Fatalf("get slot: %v", err)
	}
	if slot.Price != 4000000 {
		t.Fatalf("expected updated price, got %d", slot.Price)
	}
}

func TestApplicationsReportEndpoint(t *testing.T) {
	db := newTestDB(t)
	day, _ := time.Parse(models.DateLayout, futureDate(10))
	seedSlot(t, db, "main_page", day, 1, 5000000)

	ts := newTestServer(t, db, openConfig())

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/applications", reserveBody(1))
	resp.Body.Close()

	url := fmt.Sprintf("%s/api/v1/reports/applications.xlsx?from=%s&to=%s", ts.URL, futureDate(-1), futureDate(1))
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type: %s", ct)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) == 0 {
		t.Fatal("expected non-empty workbook")
	}
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/openfroyo/stowage/pkg/engine"
	"github.com/openfroyo/stowage/pkg/ingest"
	"github.com/openfroyo/stowage/pkg/telemetry"
)

// PlacementHint is returned by GET /api/placement.
const PlacementHint = "Use POST method with JSON body {'item_id': '000001'} to place an item."

// LogTimeLayout formats placement times in /api/logs lines.
const LogTimeLayout = "2006-01-02 15:04:05"

func (s *Server) routes() {
	s.handle("GET /api/placement", s.handlePlacementHint)
	s.handle("POST /api/placement", s.handlePlace)
	s.handle("GET /api/search", s.handleSearch)
	s.handle("POST /api/retrieve", s.handleRetrieve)
	s.handle("GET /api/waste/identify", s.handleWasteIdentify)
	s.handle("GET /api/waste/return-plan", s.handleReturnPlan)
	s.handle("POST /api/waste/complete-undocking", s.handleUndock)
	s.handle("POST /api/import/items", s.handleImportItems)
	s.handle("POST /api/import/containers", s.handleImportContainers)
	s.handle("GET /api/export/arrangement", s.handleExport)
	s.handle("POST /api/simulate/day", s.handleSimulateDay)
	s.handle("GET /api/logs", s.handleLogs)
	s.handle("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", s.tel.Metrics.Handler())
}

type itemRequest struct {
	ItemID string `json:"item_id"`
}

func (s *Server) handlePlacementHint(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": PlacementHint,
		"status":  engine.StatusInfo,
	})
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeItemRequest(w, r)
	if !ok {
		return
	}

	var res *engine.PlacementResult
	err := telemetry.InstrumentOperation(r.Context(), engine.OpPlace, func(ctx context.Context) error {
		var err error
		res, err = s.eng.Place(ctx, req.ItemID)
		return err
	}, telemetry.AttrItemID.String(req.ItemID))
	if err != nil {
		writeError(w, err)
		return
	}

	s.persist(r.Context(), r, engine.OpPlace, req.ItemID, res)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       engine.StatusSuccess,
		"container_id": res.ContainerID,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	var hits []engine.SearchHit
	err := telemetry.InstrumentOperation(r.Context(), engine.OpSearch, func(ctx context.Context) error {
		var err error
		hits, err = s.eng.Search(ctx, query)
		return err
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, hits)
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeItemRequest(w, r)
	if !ok {
		return
	}

	var res *engine.RetrievalResult
	err := telemetry.InstrumentOperation(r.Context(), engine.OpRetrieve, func(ctx context.Context) error {
		var err error
		res, err = s.eng.Retrieve(ctx, req.ItemID)
		return err
	}, telemetry.AttrItemID.String(req.ItemID))
	if err != nil {
		writeError(w, err)
		return
	}

	s.persist(r.Context(), r, engine.OpRetrieve, req.ItemID, res)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  engine.StatusSuccess,
		"item_id": res.ItemID,
	})
}

func (s *Server) handleWasteIdentify(w http.ResponseWriter, r *http.Request) {
	report := s.identifyWaste(r.Context(), s.eng.IdentifyWaste)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"waste_items": report.Items,
	})
}

func (s *Server) handleReturnPlan(w http.ResponseWriter, r *http.Request) {
	report := s.identifyWaste(r.Context(), s.eng.ReturnPlan)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"return_plan": report.Items,
		"status":      report.Status,
	})
}

func (s *Server) identifyWaste(ctx context.Context, fn func(context.Context) *engine.WasteReport) *engine.WasteReport {
	var report *engine.WasteReport
	_ = telemetry.InstrumentOperation(ctx, engine.OpIdentifyWaste, func(ctx context.Context) error {
		report = fn(ctx)
		return nil
	})
	return report
}

func (s *Server) handleUndock(w http.ResponseWriter, r *http.Request) {
	res := s.removeWaste(r, engine.OpUndock, s.eng.Undock)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   res.Status,
		"undocked": res.RemovedIDs(),
	})
}

func (s *Server) handleSimulateDay(w http.ResponseWriter, r *http.Request) {
	res := s.removeWaste(r, engine.OpSimulateDay, s.eng.SimulateDay)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        res.Status,
		"message":       res.Message,
		"waste_removed": res.RemovedIDs(),
	})
}

func (s *Server) removeWaste(r *http.Request, op string, fn func(context.Context) *engine.RemovalResult) *engine.RemovalResult {
	var res *engine.RemovalResult
	_ = telemetry.InstrumentOperation(r.Context(), op, func(ctx context.Context) error {
		res = fn(ctx)
		telemetry.SetAttributes(telemetry.SpanFromContext(ctx), telemetry.AttrRemoved.Int(len(res.Removed)))
		return nil
	})
	if len(res.Removed) > 0 {
		s.persist(r.Context(), r, op, "", res.RemovedIDs())
	}
	return res
}

func (s *Server) handleImportItems(w http.ResponseWriter, r *http.Request) {
	records, err := ingest.ReadItemsJSON(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes), "request")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if s.schemas != nil {
		if errs := s.schemas.ValidateItems(r.Context(), records); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}
	}

	s.importRecords(w, r, engine.OpImportItems, engine.ImportItems, func(ctx context.Context) (*engine.ImportResult, error) {
		return s.eng.ImportItems(ctx, records)
	})
}

func (s *Server) handleImportContainers(w http.ResponseWriter, r *http.Request) {
	records, err := ingest.ReadContainersJSON(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes), "request")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	if s.schemas != nil {
		if errs := s.schemas.ValidateContainers(r.Context(), records); len(errs) > 0 {
			writeValidationErrors(w, errs)
			return
		}
	}

	s.importRecords(w, r, engine.OpImportContainer, engine.ImportContainers, func(ctx context.Context) (*engine.ImportResult, error) {
		return s.eng.ImportContainers(ctx, records)
	})
}

func (s *Server) importRecords(w http.ResponseWriter, r *http.Request, op string, kind engine.ImportKind, fn func(context.Context) (*engine.ImportResult, error)) {
	var res *engine.ImportResult
	err := telemetry.InstrumentOperation(r.Context(), op, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	}, telemetry.AttrImportKind.String(string(kind)))
	if err != nil {
		writeError(w, err)
		return
	}

	s.persist(r.Context(), r, op, "", res)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	containers := s.eng.Arrangement(r.Context())

	arrangement := make(map[string][]string, len(containers))
	for _, c := range containers {
		arrangement[c.ContainerID] = c.Items
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"arrangement": arrangement,
		"containers":  containers,
		"status":      engine.StatusSuccess,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries := s.eng.PlacementLog(r.Context())

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, FormatLogEntry(e))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":    lines,
		"entries": entries,
		"status":  engine.StatusSuccess,
	})
}

// FormatLogEntry renders a placement log entry as a single line.
func FormatLogEntry(e engine.LogEntry) string {
	if e.PlacedAt.IsZero() {
		return fmt.Sprintf("Item %s placed in %s", e.ItemID, e.ContainerID)
	}
	return fmt.Sprintf("Item %s placed in %s at %s", e.ItemID, e.ContainerID, e.PlacedAt.Format(LogTimeLayout))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}

	if s.store != nil {
		if err := s.store.HealthCheck(r.Context()); err != nil {
			body["status"] = "degraded"
			body["store"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}

	stats := s.eng.Stats()
	body["containers"] = stats.Containers
	body["items"] = stats.Items
	body["assigned"] = stats.Assigned
	if violations := s.eng.Verify(); len(violations) > 0 {
		body["status"] = "inconsistent"
		body["violations"] = len(violations)
		writeJSON(w, http.StatusInternalServerError, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) decodeItemRequest(w http.ResponseWriter, r *http.Request) (itemRequest, bool) {
	var req itemRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeBadRequest(w, fmt.Errorf("invalid request body: %w", err))
		return req, false
	}
	if req.ItemID == "" {
		writeBadRequest(w, errors.New("item_id is required"))
		return req, false
	}
	return req, true
}

// StatusCode maps an engine error to an HTTP status.
func StatusCode(err error) int {
	switch engine.KindOf(err) {
	case engine.ErrorKindNotFound:
		return http.StatusNotFound
	case engine.ErrorKindAlreadyUnassigned:
		return http.StatusConflict
	case engine.ErrorKindIneligible, engine.ErrorKindInvalid, engine.ErrorKindPolicyDenied:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	message := err.Error()
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		message = ee.Reason()
	}

	body := map[string]interface{}{
		"status":  engine.StatusError,
		"message": message,
	}
	if ee != nil {
		body["code"] = ee.Code
		if v, ok := ee.Details["violations"]; ok {
			body["violations"] = v
		}
	}
	writeJSON(w, StatusCode(err), body)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"status":  engine.StatusError,
		"message": err.Error(),
	})
}

func writeValidationErrors(w http.ResponseWriter, errs ingest.ValidationErrors) {
	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Record < errs[j].Record })
	writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"status":  engine.StatusError,
		"message": errs.Error(),
		"errors":  errs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonString(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/finsight-io/finsight/internal/config"
	"github.com/finsight-io/finsight/internal/core/domain"
	"github.com/finsight-io/finsight/internal/core/ports"
	"github.com/finsight-io/finsight/internal/observability/metrics"
)

const (
	serviceName    = "finsight-api"
	maxUploadBytes = 64 << 20

	backpressureMaxInFlight = 64
	backpressureMaxWait     = 5 * time.Second
)

// WorkbookExporter renders extracted tables as a spreadsheet file.
type WorkbookExporter func(tables []domain.ExtractedTable) ([]byte, error)

type Router struct {
	cfg       config.Config
	ingest    ports.DocumentIngestor
	jobs      ports.JobReader
	reader    ports.DocumentReader
	metricsUC ports.MetricsService
	chat      ports.ChatService
	export    WorkbookExporter
	observed  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg config.Config,
	ingest ports.DocumentIngestor,
	jobs ports.JobReader,
	reader ports.DocumentReader,
	metricsUC ports.MetricsService,
	chat ports.ChatService,
	export WorkbookExporter,
	observed *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		cfg:       cfg,
		ingest:    ingest,
		jobs:      jobs,
		reader:    reader,
		metricsUC: metricsUC,
		chat:      chat,
		export:    export,
		observed:  observed,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("GET /v1/documents/{id}/tables", rt.listTables)
	mux.HandleFunc("GET /v1/documents/{id}/tables/export", rt.exportTables)
	mux.HandleFunc("GET /v1/documents/{id}/items", rt.listItems)
	mux.HandleFunc("GET /v1/tables/{id}/metrics", rt.tableMetrics)
	mux.HandleFunc("GET /v1/jobs/{id}", rt.jobStatus)
	mux.HandleFunc("POST /v1/jobs/{id}/cancel", rt.cancelJob)
	mux.HandleFunc("POST /v1/sessions", rt.createSession)
	mux.HandleFunc("POST /v1/sessions/{id}/ask", rt.ask)
	mux.HandleFunc("GET /v1/sessions/{id}/history", rt.sessionHistory)
	if rt.observed != nil {
		mux.Handle("GET /metrics", rt.observed.Handler())
	}

	var handler http.Handler = mux
	if rt.observed != nil {
		handler = rt.observed.Middleware(serviceName, handler)
	}
	handler = backpressureMiddleware(handler, backpressureMaxInFlight, backpressureMaxWait, rt.recordOverloaded)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.recordRateLimited)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read upload: " + err.Error()})
		return
	}

	receipt, err := rt.ingest.Submit(r.Context(), raw, fileHeader.Filename, r.FormValue("language"))
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.observed != nil {
		rt.observed.RecordUpload(serviceName, len(raw), receipt.Deduplicated)
	}
	status := http.StatusAccepted
	if receipt.Deduplicated {
		status = http.StatusOK
	}
	writeJSON(w, status, receipt)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.reader.Document(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) listTables(w http.ResponseWriter, r *http.Request) {
	tables, err := rt.reader.Tables(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (rt *Router) listItems(w http.ResponseWriter, r *http.Request) {
	items, err := rt.reader.Items(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (rt *Router) exportTables(w http.ResponseWriter, r *http.Request) {
	documentID := r.PathValue("id")

	tables, err := rt.reader.Tables(r.Context(), documentID)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := rt.export(tables)
	if rt.observed != nil {
		rt.observed.RecordExport(serviceName, err)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", documentID+"-tables.xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (rt *Router) tableMetrics(w http.ResponseWriter, r *http.Request) {
	result, err := rt.metricsUC.TableMetrics(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) jobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := rt.jobs.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (rt *Router) cancelJob(w http.ResponseWriter, r *http.Request) {
	if err := rt.jobs.Cancel(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation requested"})
}

func (rt *Router) createSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentIDs []string `json:"document_ids"`
		Language    string   `json:"language"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	session, err := rt.chat.CreateSession(r.Context(), req.DocumentIDs, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.observed != nil {
		rt.observed.RecordSessionCreated(serviceName)
	}
	writeJSON(w, http.StatusCreated, session)
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}

	answer, err := rt.chat.Ask(r.Context(), r.PathValue("id"), req.Question)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.observed != nil {
		rt.observed.RecordAsk(serviceName, len(answer.References), len(answer.References) == 0)
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	history, err := rt.chat.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": history})
}

func (rt *Router) recordRateLimited() {
	if rt.observed != nil {
		rt.observed.RecordRateLimited(serviceName)
	}
}

func (rt *Router) recordOverloaded() {
	if rt.observed != nil {
		rt.observed.RecordOverloaded(serviceName)
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

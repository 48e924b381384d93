package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/culture-relevance/internal/config"
	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
	"github.com/kirillkom/culture-relevance/internal/observability/metrics"
)

const (
	maxUploadBytes       = 32 << 20
	multipartMemoryBytes = 8 << 20
	backpressureWait     = 250 * time.Millisecond
	defaultImageName     = "uploaded_image"
)

// Routes served by the API; also the path label values of the HTTP metrics.
var Routes = []string{
	"/healthz",
	"/metrics",
	"/v1/analyze",
	"/v1/analyze/predefined",
	"/v1/analyze/jobs",
	"/v1/predefined-lists",
	"/v1/models",
}

type Router struct {
	analyzer ports.RelevanceAnalyzer
	models   ports.JudgmentModelLister
	jobs     ports.AnalysisJobQueuer
	lists    domain.CultureLists
	metrics  *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
}

// NewRouter builds the API router. jobs may be nil, in which case the job
// endpoint answers 503. httpMetrics may be nil to disable /metrics.
func NewRouter(
	cfg config.Config,
	analyzer ports.RelevanceAnalyzer,
	models ports.JudgmentModelLister,
	jobs ports.AnalysisJobQueuer,
	lists domain.CultureLists,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		analyzer:       analyzer,
		models:         models,
		jobs:           jobs,
		lists:          lists,
		metrics:        httpMetrics,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
	}
}

func (rt *Router) Handler() http.Handler {
	analyze := func(h http.HandlerFunc) http.Handler {
		return backpressureMiddleware(h, rt.maxInFlight, backpressureWait, rt.recordRejected)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.Handle("POST /v1/analyze", analyze(rt.analyzeImage))
	mux.Handle("POST /v1/analyze/predefined", analyze(rt.analyzeWithPredefined))
	mux.HandleFunc("POST /v1/analyze/jobs", rt.enqueueAnalysis)
	mux.HandleFunc("GET /v1/predefined-lists", rt.predefinedLists)
	mux.HandleFunc("GET /v1/models", rt.listModels)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = rateLimitMiddleware(mux, rt.rateLimitRPS, rt.rateLimitBurst, rt.recordRejected)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected("api", reason)
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type analysisResponse struct {
	*domain.AnalysisResult
	// upload filename as sent by the client
	ImagePath string `json:"image_path"`
}

func (rt *Router) analyzeImage(w http.ResponseWriter, r *http.Request) {
	upload, ok := readImageUpload(w, r)
	if !ok {
		return
	}

	cultures := splitCultures(r.FormValue("cultures"))
	if len(cultures) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "at least one culture must be provided"})
		return
	}
	multi, err := parseFormBool(r.FormValue("use_multiple_wiki_pages"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "use_multiple_wiki_pages must be a boolean"})
		return
	}

	rt.runAnalysis(w, r, upload, ports.AnalyzeInput{
		Image:         upload.data,
		Cultures:      cultures,
		MultiContext:  multi,
		JudgmentModel: strings.TrimSpace(r.FormValue("model_name")),
		SessionID:     strings.TrimSpace(r.FormValue("session_id")),
	})
}

// analyzeWithPredefined always scores in single-page context mode.
func (rt *Router) analyzeWithPredefined(w http.ResponseWriter, r *http.Request) {
	upload, ok := readImageUpload(w, r)
	if !ok {
		return
	}

	cultures, err := rt.lists.Resolve(r.FormValue("list_name"))
	if err != nil {
		writeError(w, err)
		return
	}

	rt.runAnalysis(w, r, upload, ports.AnalyzeInput{
		Image:         upload.data,
		Cultures:      cultures,
		JudgmentModel: strings.TrimSpace(r.FormValue("model_name")),
		SessionID:     strings.TrimSpace(r.FormValue("session_id")),
	})
}

func (rt *Router) runAnalysis(w http.ResponseWriter, r *http.Request, upload imageUpload, in ports.AnalyzeInput) {
	result, err := rt.analyzer.Process(r.Context(), in)
	if err != nil {
		slog.Error("analysis_failed",
			"request_id", requestIDFromContext(r.Context()),
			"image", upload.filename,
			"error", err,
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, analysisResponse{
		AnalysisResult: result,
		ImagePath:      upload.filename,
	})
}

func (rt *Router) enqueueAnalysis(w http.ResponseWriter, r *http.Request) {
	if rt.jobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "analysis jobs are disabled"})
		return
	}

	upload, ok := readImageUpload(w, r)
	if !ok {
		return
	}
	multi, err := parseFormBool(r.FormValue("use_multiple_wiki_pages"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "use_multiple_wiki_pages must be a boolean"})
		return
	}

	job, err := rt.jobs.Enqueue(r.Context(), upload.filename, bytes.NewReader(upload.data), domain.AnalysisJob{
		Cultures:      splitCultures(r.FormValue("cultures")),
		ListName:      strings.TrimSpace(r.FormValue("list_name")),
		MultiContext:  multi,
		JudgmentModel: strings.TrimSpace(r.FormValue("model_name")),
		SessionID:     strings.TrimSpace(r.FormValue("session_id")),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (rt *Router) predefinedLists(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"lists": rt.lists.Names()})
}

func (rt *Router) listModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"models": rt.models.JudgmentModels()})
}

type imageUpload struct {
	filename string
	data     []byte
}

func readImageUpload(w http.ResponseWriter, r *http.Request) (imageUpload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "image is too large"})
			return imageUpload{}, false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart form is required"})
		return imageUpload{}, false
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'image' is required"})
		return imageUpload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read image"})
		return imageUpload{}, false
	}
	if !isImageContent(header, data) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file must be an image"})
		return imageUpload{}, false
	}

	name := header.Filename
	if strings.TrimSpace(name) == "" {
		name = defaultImageName
	}
	return imageUpload{filename: name, data: data}, true
}

func isImageContent(header *multipart.FileHeader, data []byte) bool {
	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	return strings.HasPrefix(contentType, "image/")
}

func splitCultures(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseFormBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("parse bool %q: %w", raw, err)
	}
	return v, nil
}

func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "failed to process image"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

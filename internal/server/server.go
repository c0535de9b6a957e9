package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/iwvelando/curve-forecast/internal/config"
	"github.com/iwvelando/curve-forecast/internal/forecast"
	"github.com/iwvelando/curve-forecast/internal/optimizer"
	"github.com/iwvelando/curve-forecast/internal/persistency"
	"github.com/iwvelando/curve-forecast/pkg/constants"
	"github.com/iwvelando/curve-forecast/pkg/optimization"
	"github.com/iwvelando/curve-forecast/pkg/output"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	version       string
	limits        FitLimits
	fitTimeout    time.Duration
	fits          *fitCache
}

// NewHandler constructs the HTTP handler that serves the curve API. A nil
// cfg uses DefaultConfig.
func NewHandler(logger *zap.Logger, cfg *Config, version string) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	maxUploadSize := cfg.UploadSizeBytes()
	if maxUploadSize <= 0 {
		maxUploadSize = constants.DefaultMaxUploadSizeBytes
	}

	trimmedVersion := strings.TrimSpace(version)
	if trimmedVersion == "" {
		trimmedVersion = "dev"
	}

	h := &handler{
		logger:        logger,
		maxUploadSize: maxUploadSize,
		version:       trimmedVersion,
		limits:        cfg.Fit,
		fitTimeout:    cfg.FitTimeout(),
		fits:          newFitCache(cfg.Fit.CacheEntries),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json", "text/csv"))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.respondErrorWithOp(w, http.StatusNotFound, "not found", "server.NotFound")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		h.respondErrorWithOp(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed), "server.MethodNotAllowed")
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", h.handleVersion)
		r.Get("/presets", h.handlePresets)

		r.Post("/adoption/series", h.handleAdoptionSeries)
		r.Post("/adoption/fit", h.handleAdoptionFit)

		r.Post("/persistency/series", h.handlePersistencySeries)
		r.Post("/persistency/fit", h.handlePersistencyFit)
		r.Post("/persistency/cohort", h.handlePersistencyCohort)

		r.Post("/forecast", h.handleForecast)
	})

	return r
}

// requestLogger logs one line per request through zap.
func (h *handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request served",
			zap.String("op", "server.requestLogger"),
			zap.String("requestId", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type fitResponse struct {
	Results   interface{}            `json:"results"`
	Best      interface{}            `json:"best"`
	Summaries []optimization.Summary `json:"summaries"`
	Warnings  []string               `json:"warnings,omitempty"`
}

type forecastResponse struct {
	Report     *forecast.Report `json:"report"`
	CSV        string           `json:"csv"`
	Warnings   []string         `json:"warnings,omitempty"`
	Duration   string           `json:"duration"`
	ConfigYAML string           `json:"configYaml,omitempty"`
}

func (h *handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *handler) handlePresets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"presets": persistency.Presets(),
	})
}

// readBody reads the request body within the upload limit. It writes the
// error response itself and reports whether the caller may continue.
func (h *handler) readBody(w http.ResponseWriter, r *http.Request, op string) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request exceeds limit of %d bytes", h.maxUploadSize), op)
			return nil, false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to read request: %v", err), op)
		return nil, false
	}
	return data, true
}

// sectionRequest decodes a JSON body holding one configuration section and
// resolves it as if it were that section of a full configuration. Keys listed
// in lift are moved out of the section to the top level under their mapped
// path.
func (h *handler) sectionRequest(w http.ResponseWriter, body []byte, section string, lift map[string][]string, op string) (*config.Configuration, *config.Resolved, bool) {
	payload := make(map[string]interface{})
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to decode request: %v", err), op)
			return nil, nil, false
		}
	}

	doc := map[string]interface{}{}
	for key, path := range lift {
		v, ok := payload[key]
		if !ok {
			continue
		}
		delete(payload, key)
		setPath(doc, path, v)
	}
	setPath(doc, []string{section}, mergeMaps(payload, lookupMap(doc, section)))

	encoded, err := json.Marshal(doc)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to encode request: %v", err), op)
		return nil, nil, false
	}
	conf, err := config.ParseConfiguration(encoded, "json")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return nil, nil, false
	}
	resolved, err := conf.Resolve()
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return nil, nil, false
	}
	return conf, resolved, true
}

func setPath(doc map[string]interface{}, path []string, v interface{}) {
	cur := doc
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = v
}

func lookupMap(doc map[string]interface{}, key string) map[string]interface{} {
	m, _ := doc[key].(map[string]interface{})
	return m
}

func mergeMaps(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func (h *handler) handleAdoptionSeries(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleAdoptionSeries"
	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}
	_, resolved, ok := h.sectionRequest(w, body, "adoption", nil, op)
	if !ok {
		return
	}
	report, err := forecast.GetAdoption(h.logger, resolved.Adoption, resolved.AdoptionObserved)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handlePersistencySeries(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePersistencySeries"
	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}
	_, resolved, ok := h.sectionRequest(w, body, "persistency", nil, op)
	if !ok {
		return
	}
	report, err := forecast.GetPersistency(h.logger, resolved.Persistency, resolved.PersistencyObserved,
		resolved.Benchmarks, resolved.Cohort, resolved.MonthlyDose)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

func (h *handler) handlePersistencyCohort(w http.ResponseWriter, r *http.Request) {
	const op = "server.handlePersistencyCohort"
	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}
	_, resolved, ok := h.sectionRequest(w, body, "persistency", map[string][]string{
		"newStarts": {"persistency", "cohort", "newStarts"},
		"months":    {"persistency", "cohort", "months"},
	}, op)
	if !ok {
		return
	}
	model, params := resolved.Persistency.Effective()
	p := params.For(model)
	if p == nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("unknown model %q", model), op)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"model":  model,
		"cohort": persistency.Simulate(p, resolved.Cohort.NewStarts, resolved.Cohort.Months),
	})
}

func (h *handler) handleAdoptionFit(w http.ResponseWriter, r *http.Request) {
	h.handleFit(w, r, "adoption", "server.handleAdoptionFit")
}

func (h *handler) handlePersistencyFit(w http.ResponseWriter, r *http.Request) {
	h.handleFit(w, r, "persistency", "server.handlePersistencyFit")
}

// handleFit fits one side. Identical requests are answered from the cache.
func (h *handler) handleFit(w http.ResponseWriter, r *http.Request, section, op string) {
	body, ok := h.readBody(w, r, op)
	if !ok {
		return
	}

	key := fitKey(r.URL.Path, body)
	if cached, hit := h.fits.get(key); hit {
		w.Header().Set("X-Fit-Cache", "hit")
		h.writeRawJSON(w, http.StatusOK, cached)
		return
	}

	conf, resolved, ok := h.sectionRequest(w, body, section, map[string][]string{
		"models":        {"fit", section, "models"},
		"maxIterations": {"fit", section, "maxIterations"},
		"tolerance":     {"fit", section, "tolerance"},
	}, op)
	if !ok {
		return
	}
	// Only the requested side is fitted.
	if section == "adoption" {
		resolved.PersistencyObserved = nil
	} else {
		resolved.AdoptionObserved = nil
	}

	res, ok := h.runFits(w, r, resolved, op)
	if !ok {
		return
	}

	response := fitResponse{Summaries: res.Summaries(), Warnings: conf.ValidateConfiguration()}
	if section == "adoption" {
		response.Results = res.Adoption
		response.Best = res.AdoptionBest
	} else {
		response.Results = res.Persistency
		response.Best = res.PersistencyBest
	}
	if response.Summaries == nil {
		response.Summaries = []optimization.Summary{}
	}

	encoded, err := json.Marshal(response)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to encode fit: %v", err), op)
		return
	}
	h.fits.put(key, encoded)
	w.Header().Set("X-Fit-Cache", "miss")
	h.writeRawJSON(w, http.StatusOK, encoded)
}

// runFits fits resolved within the server limits. It writes the error
// response itself and reports whether the caller may continue.
func (h *handler) runFits(w http.ResponseWriter, r *http.Request, resolved *config.Resolved, op string) (*optimizer.Result, bool) {
	h.limits.limit(&resolved.Fit)

	ctx := r.Context()
	if h.fitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.fitTimeout)
		defer cancel()
	}

	runner, err := optimizer.NewRunner(h.logger, resolved)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to initialize fit runner: %v", err), op)
		return nil, false
	}
	res, err := runner.Run(ctx)
	switch {
	case err == nil:
		return res, true
	case errors.Is(err, context.DeadlineExceeded):
		h.respondErrorWithOp(w, http.StatusServiceUnavailable,
			fmt.Sprintf("fit exceeded the %s limit", h.fitTimeout), op)
	case errors.Is(err, context.Canceled):
		h.logger.Debug("client went away during fit", zap.String("op", op))
	default:
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("fit failed: %v", err), op)
	}
	return nil, false
}

// handleForecast accepts a full configuration as a multipart upload (field
// "file") or as a raw YAML or JSON body.
func (h *handler) handleForecast(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleForecast"
	start := time.Now()

	configBytes, format, ok := h.readConfiguration(w, r, op)
	if !ok {
		return
	}

	conf, err := config.ParseConfiguration(configBytes, format)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	warnings := conf.ValidateConfiguration()

	resolved, err := conf.Resolve()
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}

	var fits []optimization.Summary
	var notes []string
	if resolved.Fit.Enabled {
		res, ok := h.runFits(w, r, resolved, op)
		if !ok {
			return
		}
		if notes, err = res.Apply(resolved); err != nil {
			h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
			return
		}
		fits = res.Summaries()
	}

	report, err := forecast.GetForecast(h.logger, resolved, fits)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to compute forecast: %v", err), op)
		return
	}
	report.Notes = append(notes, report.Notes...)

	if r.URL.Query().Get("format") == constants.OutputFormatXLSX {
		h.writeWorkbook(w, report, op)
		return
	}

	configYAML, err := yaml.Marshal(conf)
	if err != nil {
		h.logger.Warn("failed to marshal configuration",
			zap.String("op", op),
			zap.Error(err),
		)
	}

	elapsed := time.Since(start)
	response := forecastResponse{
		Report:     report,
		CSV:        output.CsvString(report),
		Warnings:   warnings,
		Duration:   elapsed.String(),
		ConfigYAML: string(configYAML),
	}

	h.logger.Info("forecast computed",
		zap.String("op", op),
		zap.Int("fits", len(fits)),
		zap.Int("warnings", len(warnings)),
		zap.Duration("duration", elapsed),
	)

	h.writeJSON(w, http.StatusOK, response)
}

// readConfiguration returns the configuration document and its format.
func (h *handler) readConfiguration(w http.ResponseWriter, r *http.Request, op string) ([]byte, string, bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType != "multipart/form-data" {
		body, ok := h.readBody(w, r, op)
		if !ok {
			return nil, "", false
		}
		format := "yaml"
		if mediaType == "application/json" {
			format = "json"
		}
		return body, format, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds limit of %d bytes", h.maxUploadSize), op)
			return nil, "", false
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to parse upload: %v", err), op)
		return nil, "", false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, "missing configuration file", op)
		return nil, "", false
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			h.logger.Warn("failed to close uploaded file",
				zap.String("op", op),
				zap.Error(closeErr),
			)
		}
	}()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to read configuration: %v", err), op)
		return nil, "", false
	}

	format := "yaml"
	if header != nil && strings.HasSuffix(strings.ToLower(header.Filename), ".json") {
		format = "json"
	}
	return buf.Bytes(), format, true
}

func (h *handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)

	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *handler) writeWorkbook(w http.ResponseWriter, report *forecast.Report, op string) {
	var buf bytes.Buffer
	if err := output.WriteXlsx(&buf, report); err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, fmt.Sprintf("failed to build workbook: %v", err), op)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="forecast.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Debug("failed to write workbook", zap.String("op", op), zap.Error(err))
	}
}

// writeJSON encodes payload before anything is written, so an encoding
// failure still reaches the client as a 500.
func (h *handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode JSON response",
			zap.Int("status", status),
			zap.Error(err),
		)
		status = http.StatusInternalServerError
		body, _ = json.Marshal(map[string]string{"error": "failed to encode response"})
	}
	h.writeRawJSON(w, status, append(body, '\n'))
}

func (h *handler) writeRawJSON(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

package httpd

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/scholarr/plagiarism-service/internal/metrics"
	"github.com/scholarr/plagiarism-service/internal/service"
	"github.com/scholarr/plagiarism-service/internal/worker"
)

// StatsProvider reports queue worker activity for /status. It is nil when the
// process runs without a consumer.
type StatsProvider interface {
	GetStats() worker.WorkerStats
}

// BrokerChecker reports whether the message broker connection is down.
type BrokerChecker interface {
	IsClosed() bool
}

type Handler struct {
	plagiarismService service.PlagiarismService
	reportService     service.ReportService
	workerStats       StatsProvider
	broker            BrokerChecker
	limiter           *RateLimiter
	validate          *validator.Validate
	metrics           *metrics.Metrics
	logger            zerolog.Logger
	startTime         time.Time
}

func NewHandler(
	plagiarismService service.PlagiarismService,
	reportService service.ReportService,
	workerStats StatsProvider,
	broker BrokerChecker,
	limiter *RateLimiter,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		plagiarismService: plagiarismService,
		reportService:     reportService,
		workerStats:       workerStats,
		broker:            broker,
		limiter:           limiter,
		validate:          newValidator(),
		metrics:           m,
		logger:            logger,
		startTime:         time.Now(),
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)
	router.Get("/status", h.GetServiceStatus)
	router.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	router.Route("/api/v1/plagiarism", func(api chi.Router) {
		api.With(h.limiter.Middleware).Post("/attachments", h.TriggerAnalysis)
		api.Get("/attachments/{attachment_id}/status", h.GetPipelineStatus)

		api.Route("/submissions/{submission_id}", func(r chi.Router) {
			r.Get("/", h.ListPlagiarism)
			r.Delete("/artifacts", h.CleanupArtifacts)
		})
	})
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func getInt64URLParam(r *http.Request, key string) (int64, bool) {
	value, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	return value, true
}

func getBoolQueryParam(r *http.Request, key string) bool {
	value, err := strconv.ParseBool(r.URL.Query().Get(key))
	if err != nil {
		return false
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeValidationError(w http.ResponseWriter, err error) {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}

	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":   http.StatusText(http.StatusBadRequest),
		"message": "Request validation failed",
		"fields":  fields,
	})
}

package handler

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter wires all API routes with CORS applied
func NewRouter(exportHandler *ExportHandler, surveyHandler *SurveyHandler, allowedOrigins []string) *mux.Router {
	r := mux.NewRouter()
	r.Use(CORSMiddleware(allowedOrigins))

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/export", exportHandler.SubmitExport).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/export/{jobId}/status", exportHandler.GetStatus).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/export/{jobId}/stream", exportHandler.Stream).Methods(http.MethodGet)
	api.HandleFunc("/metrics", exportHandler.GetMetrics).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/form/ping", surveyHandler.Ping).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/form/submit", surveyHandler.SubmitSurvey).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/form/data", surveyHandler.ListSurveys).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/form/delete/{id}", surveyHandler.DeleteSurvey).Methods(http.MethodDelete, http.MethodOptions)

	return r
}

// CORSMiddleware sets CORS headers for the configured origins and
// answers preflight requests. Requests with no Origin header (curl,
// mobile apps) pass through untouched.
func CORSMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && allowed[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

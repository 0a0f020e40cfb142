package httpapi

import "net/http"

func registerSystemRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)
}

func registerReviewRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/reviews", handler.ListPendingReviews)
	mux.HandleFunc("POST /v1/reviews/{reviewID}/decision", handler.DecideReview)
}

func registerJobRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /v1/jobs", handler.ListJobs)
	mux.HandleFunc("POST /v1/jobs/{jobName}/run", handler.RunJob)
	mux.HandleFunc("GET /v1/jobs/{jobName}/runs", handler.ListJobRuns)
}

package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/domain/review"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
	"github.com/oddsgrid/sportpipe/internal/usecase"
)

const defaultReviewPageSize = 50

type Handler struct {
	reviewService *usecase.ReviewService
	orchestrator  *usecase.Orchestrator
	logger        *logging.Logger
	validator     *validator.Validate
}

func NewHandler(
	reviewService *usecase.ReviewService,
	orchestrator *usecase.Orchestrator,
	logger *logging.Logger,
) *Handler {
	if logger == nil {
		logger = logging.Default()
	}

	return &Handler{
		reviewService: reviewService,
		orchestrator:  orchestrator,
		logger:        logger,
		validator:     validator.New(),
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.Healthz")
	defer span.End()

	writeSuccess(ctx, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ListPendingReviews(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.ListPendingReviews")
	defer span.End()

	limit := defaultReviewPageSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(ctx, w, fmt.Errorf("%w: limit must be a positive integer", usecase.ErrInvalidInput))
			return
		}
		limit = parsed
	}

	entityType := record.EntityType(strings.TrimSpace(r.URL.Query().Get("entity_type")))
	if entityType != "" {
		if _, ok := record.AllEntityTypes[entityType]; !ok {
			writeError(ctx, w, fmt.Errorf("%w: unknown entity type %q", usecase.ErrInvalidInput, entityType))
			return
		}
	}

	items, err := h.reviewService.ListPending(ctx, limit)
	if err != nil {
		h.logger.WarnContext(ctx, "list pending reviews failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]reviewItemDTO, 0, len(items))
	for _, item := range items {
		if entityType != "" && item.Record.EntityType != entityType {
			continue
		}
		out = append(out, reviewItemToDTO(item))
	}

	writeSuccess(ctx, w, http.StatusOK, out)
}

func (h *Handler) DecideReview(w http.ResponseWriter, r *http.Request) {
	ctx, span := startSpan(r.Context(), "httpapi.Handler.DecideReview")
	defer span.End()

	reviewID := strings.TrimSpace(r.PathValue("reviewID"))

	var req decideReviewRequest
	decoder := sonic.ConfigDefault.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(ctx, w, fmt.Errorf("%w: invalid JSON payload: %v", usecase.ErrInvalidInput, err))
		return
	}
	if err := h.validateRequest(ctx, req); err != nil {
		writeError(ctx, w, err)
		return
	}

	entityID, err := h.reviewService.Decide(ctx, reviewID, review.Decision(req.Decision))
	if err != nil {
		h.logger.WarnContext(ctx, "decide review failed", "review_id", reviewID, "decision", req.Decision, "error", err)
		writeError(ctx, w, err)
		return
	}

	writeSuccess(ctx, w, http.StatusOK, decideReviewResponse{
		ReviewID: reviewID,
		Decision: req.Decision,
		Status:   string(review.Decision(req.Decision).TerminalStatus()),
		EntityID: entityID,
	})
}

func (h *Handler) validateRequest(ctx context.Context, payload any) error {
	ctx, span := startSpan(ctx, "httpapi.Handler.validateRequest")
	defer span.End()

	if err := h.validator.StructCtx(ctx, payload); err != nil {
		return fmt.Errorf("%w: validation failed: %v", usecase.ErrInvalidInput, err)
	}

	return nil
}

type decideReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=confirm discard"`
}

type decideReviewResponse struct {
	ReviewID string `json:"reviewId"`
	Decision string `json:"decision"`
	Status   string `json:"status"`
	EntityID string `json:"entityId"`
}

type reviewItemDTO struct {
	ID                string            `json:"id"`
	EntityType        string            `json:"entityType"`
	Source            string            `json:"source"`
	ExternalID        string            `json:"externalId"`
	Name              string            `json:"name"`
	Attributes        map[string]string `json:"attributes,omitempty"`
	SourceURL         string            `json:"sourceUrl,omitempty"`
	CandidateEntityID string            `json:"candidateEntityId"`
	Score             float64           `json:"score"`
	Status            string            `json:"status"`
	CreatedAt         string            `json:"createdAt"`
}

func reviewItemToDTO(item review.Item) reviewItemDTO {
	return reviewItemDTO{
		ID:                item.ID,
		EntityType:        string(item.Record.EntityType),
		Source:            item.Record.Source,
		ExternalID:        item.Record.ExternalID,
		Name:              item.Record.Name,
		Attributes:        item.Record.Attributes,
		SourceURL:         item.Record.SourceURL,
		CandidateEntityID: item.CandidateEntityID,
		Score:             item.Score,
		Status:            string(item.Status),
		CreatedAt:         item.CreatedAt.UTC().Format(time.RFC3339),
	}
}

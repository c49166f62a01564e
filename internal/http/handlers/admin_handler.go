// Admin HTTP handlers.
//
// Read-side endpoints for management. Responses expose role and branch of
// the author but never the participant identifier.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/repo"
	"github.com/tbourn/go-feedback-bot/internal/services"
	"github.com/tbourn/go-feedback-bot/internal/utils"
)

//
// DTOs
//

// FeedbackView is a feedback item as shown to management.
type FeedbackView struct {
	ID            string     `json:"id" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
	Message       string     `json:"message" example:"The lift in bay 3 is broken again."`
	Sentiment     string     `json:"sentiment" example:"NEGATIVE"`
	Criticality   int        `json:"criticality" example:"4"`
	Resolution    string     `json:"resolution" example:"Schedule a lift inspection this week."`
	Role          string     `json:"role" example:"MECHANIC"`
	Branch        string     `json:"branch" example:"Downtown"`
	CreatedAt     time.Time  `json:"created_at"`
	ArchiveRef    *string    `json:"archive_ref,omitempty"`
	EscalationRef *string    `json:"escalation_ref,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// ListFeedbackResponse wraps a page of feedback and pagination information.
type ListFeedbackResponse struct {
	Feedback   []FeedbackView `json:"feedback"`
	Pagination Pagination     `json:"pagination"`
}

// StatisticsResponse summarizes feedback in [from, to).
type StatisticsResponse struct {
	From                    time.Time        `json:"from"`
	To                      time.Time        `json:"to"`
	Total                   int64            `json:"total" example:"12"`
	SentimentDistribution   map[string]int64 `json:"sentiment_distribution"`
	CriticalityDistribution map[string]int64 `json:"criticality_distribution"`
	BranchDistribution      map[string]int64 `json:"branch_distribution,omitempty"`
	RoleDistribution        map[string]int64 `json:"role_distribution,omitempty"`
	CriticalCount           int64            `json:"critical_count" example:"3"`
	AverageCriticality      float64          `json:"average_criticality" example:"2.75"`
}

// SearchHitView is a ranked feedback item.
type SearchHitView struct {
	FeedbackView
	Score float64 `json:"score" example:"0.5"`
}

// SearchFeedbackResponse lists ranked matches, best first.
type SearchFeedbackResponse struct {
	Query string          `json:"query" example:"broken lift"`
	Hits  []SearchHitView `json:"hits"`
}

// BranchesResponse lists known branch labels.
type BranchesResponse struct {
	Branches []string `json:"branches" example:"Downtown,Harbor"`
}

// RegistrationsResponse counts identities per registration state.
type RegistrationsResponse struct {
	States map[string]int `json:"states"`
}

func toFeedbackView(f domain.FeedbackItem) FeedbackView {
	return FeedbackView{
		ID:            f.ID,
		Message:       f.Message,
		Sentiment:     string(f.Sentiment),
		Criticality:   f.Criticality,
		Resolution:    f.Resolution,
		Role:          string(f.Identity.Role),
		Branch:        f.Identity.BranchOrEmpty(),
		CreatedAt:     f.CreatedAt,
		ArchiveRef:    f.ArchiveRef,
		EscalationRef: f.EscalationRef,
		ResolvedAt:    f.ResolvedAt,
	}
}

func toListResponse(p *services.FeedbackPage) ListFeedbackResponse {
	views := make([]FeedbackView, 0, len(p.Items))
	for _, it := range p.Items {
		views = append(views, toFeedbackView(it))
	}
	return ListFeedbackResponse{Feedback: views, Pagination: newPagination(p)}
}

func parseRole(s string) domain.Role {
	return domain.Role(strings.ToUpper(strings.TrimSpace(s)))
}

// ListFeedback godoc
// @ID          listFeedback
// @Summary     List feedback (paginated)
// @Description Returns a filtered page of feedback, newest first by default.
// @Tags        Admin
// @Produce     json
//
// @Param       page             query  int     false "Page number"            minimum(1) default(1)
// @Param       page_size        query  int     false "Items per page"         minimum(1) maximum(100) default(20)
// @Param       sort_by          query  string  false "Sort field"             Enums(created_at, criticality) default(created_at)
// @Param       sort_dir         query  string  false "Sort direction"         Enums(asc, desc) default(desc)
// @Param       branch           query  string  false "Branch (case-insensitive)"
// @Param       role             query  string  false "Role code"              example(MECHANIC)
// @Param       sentiment        query  string  false "Sentiment"              Enums(POSITIVE, NEUTRAL, NEGATIVE)
// @Param       min_criticality  query  int     false "Minimum criticality"    minimum(1) maximum(5)
//
// @Success     200  {object} handlers.ListFeedbackResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid query"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/feedback [get]
func (h *Handlers) ListFeedback(c *gin.Context) {
	page, pageSize := clampPagination(c)
	q := services.FeedbackQuery{
		Page:     page,
		PageSize: pageSize,
		SortBy:   c.Query("sort_by"),
		SortAsc:  !utils.SortDesc(c.Query("sort_dir")),
		Branch:   strings.TrimSpace(c.Query("branch")),
		Role:     parseRole(c.Query("role")),
	}
	if raw := c.Query("sentiment"); raw != "" {
		s, okS := domain.ParseSentiment(raw)
		if !okS {
			fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "sentiment must be POSITIVE, NEUTRAL or NEGATIVE")
			return
		}
		q.Sentiment = s
	}
	if raw := c.Query("min_criticality"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "min_criticality must be an integer between 1 and 5")
			return
		}
		q.MinCriticality = n
	}

	res, err := h.admin.ListFeedback(c.Request.Context(), q)
	if err != nil {
		if errors.Is(err, services.ErrInvalidQuery) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "invalid filter or sort parameter")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, toListResponse(res))
}

// ListCritical godoc
// @ID          listCriticalFeedback
// @Summary     List critical feedback
// @Description Returns feedback at or above the escalation threshold, newest first.
// @Tags        Admin
// @Produce     json
//
// @Param       page       query  int  false "Page number"     minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListFeedbackResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/feedback/critical [get]
func (h *Handlers) ListCritical(c *gin.Context) {
	page, pageSize := clampPagination(c)
	res, err := h.admin.ListCritical(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, toListResponse(res))
}

// SearchFeedback godoc
// @ID          searchFeedback
// @Summary     Search feedback
// @Description Ranks recent feedback by word overlap with q (case and accent insensitive).
// @Tags        Admin
// @Produce     json
//
// @Param       q       query  string  true  "Search text"  example(broken lift)
// @Param       limit   query  int     false "Max hits"     minimum(1) maximum(50) default(10)
// @Param       branch  query  string  false "Branch (case-insensitive)"
// @Param       role    query  string  false "Role code"
//
// @Success     200  {object} handlers.SearchFeedbackResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid query"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/feedback/search [get]
func (h *Handlers) SearchFeedback(c *gin.Context) {
	text := strings.TrimSpace(c.Query("q"))
	if text == "" {
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "q is required")
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "limit must be a positive integer")
			return
		}
		limit = n
	}
	hits, err := h.admin.SearchFeedback(c.Request.Context(), services.SearchQuery{
		Text:   text,
		Limit:  limit,
		Branch: strings.TrimSpace(c.Query("branch")),
		Role:   parseRole(c.Query("role")),
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidQuery) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	views := make([]SearchHitView, 0, len(hits))
	for _, hit := range hits {
		views = append(views, SearchHitView{FeedbackView: toFeedbackView(hit.Item), Score: hit.Score})
	}
	ok(c, http.StatusOK, SearchFeedbackResponse{Query: text, Hits: views})
}

// ResolveFeedback godoc
// @ID          resolveFeedback
// @Summary     Mark feedback resolved
// @Description Sets resolved_at on the item. Resolving twice keeps the first timestamp.
// @Tags        Admin
// @Produce     json
//
// @Param       id  path  string  true  "Feedback ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.FeedbackView
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Feedback not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/feedback/{id}/resolve [post]
func (h *Handlers) ResolveFeedback(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "feedback id must be a UUID")
		return
	}
	item, err := h.admin.Resolve(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrFeedbackNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "feedback not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, toFeedbackView(*item))
}

// Statistics godoc
// @ID          feedbackStatistics
// @Summary     Feedback statistics
// @Description Aggregates feedback in [start, end). Without start the window is the month before end; without end it ends now.
// @Tags        Admin
// @Produce     json
//
// @Param       branch  query  string  false "Branch (case-insensitive)"
// @Param       role    query  string  false "Role code"
// @Param       start   query  string  false "Window start (RFC 3339 or YYYY-MM-DD)"  example(2025-06-01)
// @Param       end     query  string  false "Window end (RFC 3339 or YYYY-MM-DD)"    example(2025-07-01)
//
// @Success     200  {object} handlers.StatisticsResponse
// @Failure     400  {object} handlers.ErrorResponse "Invalid query"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/statistics [get]
func (h *Handlers) Statistics(c *gin.Context) {
	from, err := utils.ParseOptionalTime(c.Query("start"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "start must be RFC 3339 or YYYY-MM-DD")
		return
	}
	to, err := utils.ParseOptionalTime(c.Query("end"))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "end must be RFC 3339 or YYYY-MM-DD")
		return
	}

	st, err := h.admin.Statistics(c.Request.Context(), services.StatsQuery{
		Branch: strings.TrimSpace(c.Query("branch")),
		Role:   parseRole(c.Query("role")),
		From:   from,
		To:     to,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidQuery) {
			fail(c, http.StatusBadRequest, ErrCodeInvalidQuery, "start must be before end")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}

	resp := StatisticsResponse{
		From:                    st.From,
		To:                      st.To,
		Total:                   st.Total,
		SentimentDistribution:   make(map[string]int64, len(st.SentimentDistribution)),
		CriticalityDistribution: make(map[string]int64, len(st.CriticalityDistribution)),
		CriticalCount:           st.CriticalCount,
		AverageCriticality:      st.AverageCriticality,
	}
	for k, v := range st.SentimentDistribution {
		resp.SentimentDistribution[string(k)] = v
	}
	for k, v := range st.CriticalityDistribution {
		resp.CriticalityDistribution[strconv.Itoa(k)] = v
	}
	if st.BranchDistribution != nil {
		resp.BranchDistribution = st.BranchDistribution
	}
	if st.RoleDistribution != nil {
		resp.RoleDistribution = make(map[string]int64, len(st.RoleDistribution))
		for k, v := range st.RoleDistribution {
			resp.RoleDistribution[string(k)] = v
		}
	}
	ok(c, http.StatusOK, resp)
}

// ListBranches godoc
// @ID          listBranches
// @Summary     List branches
// @Description Distinct branch labels of registered participants, sorted.
// @Tags        Admin
// @Produce     json
// @Success     200  {object} handlers.BranchesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/branches [get]
func (h *Handlers) ListBranches(c *gin.Context) {
	branches, err := h.admin.Branches(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if branches == nil {
		branches = []string{}
	}
	ok(c, http.StatusOK, BranchesResponse{Branches: branches})
}

// Registrations godoc
// @ID          registrationSummary
// @Summary     Registration summary
// @Description Counts participants per registration state.
// @Tags        Admin
// @Produce     json
//
// @Param       branch  query  string  false "Branch"
// @Param       role    query  string  false "Role code"
//
// @Success     200  {object} handlers.RegistrationsResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /admin/registrations [get]
func (h *Handlers) Registrations(c *gin.Context) {
	sum, err := h.admin.RegistrationSummary(c.Request.Context(), repo.IdentityFilter{
		Branch: strings.TrimSpace(c.Query("branch")),
		Role:   parseRole(c.Query("role")),
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	out := make(map[string]int, len(sum))
	for k, v := range sum {
		out[string(k)] = v
	}
	ok(c, http.StatusOK, RegistrationsResponse{States: out})
}

package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nurpe/foundry-rfq/internal/http/middleware"
	"github.com/nurpe/foundry-rfq/internal/model"
	"github.com/nurpe/foundry-rfq/internal/service"
)

// ComparisonExporter renders the bid-comparison workbook.
type ComparisonExporter interface {
	Generate(comparison model.BidComparison) ([]byte, error)
}

// AwardRenderer renders the award-confirmation document.
type AwardRenderer interface {
	Generate(doc model.AwardDocument) ([]byte, error)
}

type Handler struct {
	rfqs   *service.RFQService
	race   *service.RaceService
	awards *service.AwardService
	excel  ComparisonExporter
	pdf    AwardRenderer
	log    zerolog.Logger
}

func NewHandler(
	rfqs *service.RFQService,
	race *service.RaceService,
	awards *service.AwardService,
	excel ComparisonExporter,
	pdf AwardRenderer,
	log zerolog.Logger,
) *Handler {
	return &Handler{rfqs: rfqs, race: race, awards: awards, excel: excel, pdf: pdf, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/rfqs", h.createRFQ)
	protected.GET("/rfqs", h.listRFQs)
	protected.GET("/rfqs/:id", h.getRFQ)
	protected.PATCH("/rfqs/:id", h.updateRFQ)
	protected.POST("/rfqs/:id/cancel", h.cancelRFQ)
	protected.POST("/rfqs/:id/close", h.closeRFQ)
	protected.GET("/rfqs/:id/matches", h.matchSuppliers)
	protected.POST("/rfqs/:id/broadcast", h.broadcastRFQ)
	protected.POST("/rfqs/:id/respond", h.respond)
	protected.POST("/rfqs/:id/release-hold", h.releaseHold)
	protected.POST("/rfqs/:id/award", h.award)
	protected.GET("/rfqs/:id/race", h.raceStatus)
	protected.GET("/rfqs/:id/comparison.xlsx", h.exportComparison)
	protected.GET("/rfqs/:id/award.pdf", h.exportAwardConfirmation)
}

type rfqResponse struct {
	ID                    uuid.UUID        `json:"id"`
	BuyerID               uuid.UUID        `json:"buyer_id"`
	FoundryID             uuid.UUID        `json:"foundry_id"`
	Title                 string           `json:"title"`
	Type                  string           `json:"type"`
	Category              string           `json:"category"`
	Specification         string           `json:"specification"`
	BudgetMin             decimal.Decimal  `json:"budget_min"`
	BudgetMax             decimal.Decimal  `json:"budget_max"`
	Deadline              *time.Time       `json:"deadline,omitempty"`
	Urgency               string           `json:"urgency"`
	Status                string           `json:"status"`
	PrioritySupplierID    *uuid.UUID       `json:"priority_supplier_id,omitempty"`
	PriorityHoldExpiresAt *time.Time       `json:"priority_hold_expires_at,omitempty"`
	AwardedSupplierID     *uuid.UUID       `json:"awarded_supplier_id,omitempty"`
	AwardedAt             *time.Time       `json:"awarded_at,omitempty"`
	OrderID               *uuid.UUID       `json:"order_id,omitempty"`
	CreatedAt             time.Time        `json:"created_at"`
	UpdatedAt             time.Time        `json:"updated_at"`
}

func toRFQResponse(rfq *model.RFQ) rfqResponse {
	resp := rfqResponse{
		ID:                rfq.ID,
		BuyerID:           rfq.BuyerID,
		FoundryID:         rfq.FoundryID,
		Title:             rfq.Title,
		Type:              string(rfq.Type),
		Category:          rfq.Category,
		Specification:     rfq.Specification,
		BudgetMin:         rfq.BudgetMin,
		BudgetMax:         rfq.BudgetMax,
		Deadline:          rfq.Deadline,
		Urgency:           string(rfq.Urgency),
		Status:            string(rfq.Status),
		AwardedSupplierID: rfq.AwardedSupplierID,
		AwardedAt:         rfq.AwardedAt,
		OrderID:           rfq.OrderID,
		CreatedAt:         rfq.CreatedAt,
		UpdatedAt:         rfq.UpdatedAt,
	}
	// Hide an expired hold from callers exactly like the store does.
	if rfq.HoldActive(time.Now().UTC()) {
		resp.PrioritySupplierID = rfq.PrioritySupplierID
		resp.PriorityHoldExpiresAt = rfq.PriorityHoldExpiresAt
	}
	return resp
}

type createRFQRequest struct {
	Title         string           `json:"title" binding:"required"`
	Type          string           `json:"type" binding:"required"`
	Category      string           `json:"category"`
	Specification string           `json:"specification"`
	BudgetMin     *decimal.Decimal `json:"budget_min"`
	BudgetMax     *decimal.Decimal `json:"budget_max"`
	Deadline      *time.Time       `json:"deadline"`
	Urgency       string           `json:"urgency"`
}

func (h *Handler) createRFQ(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	var req createRFQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := service.CreateRFQInput{
		Title:         req.Title,
		Type:          req.Type,
		Category:      req.Category,
		Specification: req.Specification,
		Deadline:      req.Deadline,
		Urgency:       req.Urgency,
	}
	if req.BudgetMin != nil {
		input.BudgetMin = *req.BudgetMin
	}
	if req.BudgetMax != nil {
		input.BudgetMax = *req.BudgetMax
	}

	rfq, err := h.rfqs.Create(c.Request.Context(), principal, input)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": toRFQResponse(rfq)})
}

func (h *Handler) listRFQs(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}

	rfqs, err := h.rfqs.ListOwn(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}

	responses := make([]rfqResponse, 0, len(rfqs))
	for i := range rfqs {
		responses = append(responses, toRFQResponse(&rfqs[i]))
	}
	c.JSON(http.StatusOK, gin.H{"data": responses})
}

func (h *Handler) getRFQ(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	rfq, err := h.rfqs.Get(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRFQResponse(rfq)})
}

type updateRFQRequest struct {
	Title         *string          `json:"title"`
	Category      *string          `json:"category"`
	Specification *string          `json:"specification"`
	BudgetMin     *decimal.Decimal `json:"budget_min"`
	BudgetMax     *decimal.Decimal `json:"budget_max"`
	Deadline      *time.Time       `json:"deadline"`
	Urgency       *string          `json:"urgency"`
}

func (h *Handler) updateRFQ(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	var req updateRFQRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fields := service.RFQUpdate{
		Title:         req.Title,
		Category:      req.Category,
		Specification: req.Specification,
		BudgetMin:     req.BudgetMin,
		BudgetMax:     req.BudgetMax,
		Deadline:      req.Deadline,
	}
	if req.Urgency != nil {
		urgency, ok := model.ParseUrgencyTier(*req.Urgency)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid urgency %q", *req.Urgency)})
			return
		}
		fields.Urgency = &urgency
	}

	rfq, err := h.rfqs.Update(c.Request.Context(), principal, rfqID, fields)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRFQResponse(rfq)})
}

type cancelRFQRequest struct {
	Reason *string `json:"reason"`
}

func (h *Handler) cancelRFQ(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	var req cancelRFQRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	rfq, err := h.rfqs.Cancel(c.Request.Context(), principal, rfqID, req.Reason)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRFQResponse(rfq)})
}

func (h *Handler) closeRFQ(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	rfq, err := h.rfqs.Close(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": toRFQResponse(rfq)})
}

type supplierMatchResponse struct {
	SupplierID   uuid.UUID `json:"supplier_id"`
	SupplierName string    `json:"supplier_name"`
	Score        float64   `json:"score"`
	Reasons      []string  `json:"reasons"`
}

func (h *Handler) matchSuppliers(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	matches, err := h.race.MatchSuppliers(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	responses := make([]supplierMatchResponse, 0, len(matches))
	for _, match := range matches {
		responses = append(responses, supplierMatchResponse{
			SupplierID:   match.SupplierID,
			SupplierName: match.SupplierName,
			Score:        match.Score,
			Reasons:      match.Reasons,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": responses})
}

func (h *Handler) broadcastRFQ(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	result, err := h.race.Broadcast(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"rfq":       toRFQResponse(result.RFQ),
		"matched":   result.Matched,
		"delivered": result.Delivered,
	}})
}

type respondRequest struct {
	Response    string           `json:"response" binding:"required"`
	QuotedPrice *decimal.Decimal `json:"quoted_price"`
	Message     *string          `json:"message"`
}

func (h *Handler) respond(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.race.Respond(c.Request.Context(), principal, rfqID, service.RespondInput{
		Response:    req.Response,
		QuotedPrice: req.QuotedPrice,
		Message:     req.Message,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"response":        string(result.Response),
		"priority_hold":   result.PriorityHold,
		"hold_expires_at": result.HoldExpiresAt,
	}})
}

func (h *Handler) releaseHold(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	if err := h.race.ReleaseHold(c.Request.Context(), principal, rfqID); err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"released": true}})
}

type awardRequest struct {
	SupplierID string `json:"supplier_id" binding:"required"`
}

func (h *Handler) award(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	var req awardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	supplierID, err := uuid.Parse(strings.TrimSpace(req.SupplierID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid supplier_id"})
		return
	}

	result, err := h.awards.Award(c.Request.Context(), principal, rfqID, supplierID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"rfq":      toRFQResponse(result.RFQ),
		"order_id": result.OrderID,
	}})
}

type raceStatusResponse struct {
	RFQID          uuid.UUID  `json:"rfq_id"`
	Phase          string     `json:"phase"`
	HoldSupplierID *uuid.UUID `json:"hold_supplier_id,omitempty"`
	HoldExpiresAt  *time.Time `json:"hold_expires_at,omitempty"`
	Pending        int64      `json:"pending"`
	Accepted       int64      `json:"accepted"`
	Declined       int64      `json:"declined"`
	InfoRequests   int64      `json:"info_requests"`
}

func (h *Handler) raceStatus(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	status, err := h.race.CheckRaceStatus(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": raceStatusResponse{
		RFQID:          status.RFQID,
		Phase:          string(status.Phase),
		HoldSupplierID: status.HoldSupplierID,
		HoldExpiresAt:  status.HoldExpiresAt,
		Pending:        status.Responses.Pending,
		Accepted:       status.Responses.Accepted,
		Declined:       status.Responses.Declined,
		InfoRequests:   status.Responses.InfoRequests,
	}})
}

func (h *Handler) exportComparison(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	comparison, err := h.race.BidComparison(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	content, err := h.excel.Generate(*comparison)
	if err != nil {
		h.handleError(c, err)
		return
	}

	fileName := fmt.Sprintf("rfq-comparison-%s.xlsx", rfqID)
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content)
}

func (h *Handler) exportAwardConfirmation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authorized"})
		return
	}
	rfqID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rfq id"})
		return
	}

	doc, err := h.awards.Confirmation(c.Request.Context(), principal, rfqID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	content, err := h.pdf.Generate(*doc)
	if err != nil {
		h.handleError(c, err)
		return
	}

	fileName := fmt.Sprintf("rfq-award-%s.pdf", rfqID)
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, "application/pdf", content)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrAlreadyAwarded),
		errors.Is(err, service.ErrStateConflict),
		errors.Is(err, service.ErrAlreadyDeclined),
		errors.Is(err, service.ErrNotBroadcast),
		errors.Is(err, service.ErrHoldActive):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(c.Param("id")))
}

package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/rl1809/shop-dashboard/internal/core/domain"
	"github.com/rl1809/shop-dashboard/internal/core/service"
)

type HTTPHandler struct {
	cartService *service.CartService
	logger      *zap.Logger
}

type AddItemHTTPRequest struct {
	RequestID string `json:"request_id"`
	UserID    string `json:"user_id" binding:"required"`
	ProductID string `json:"product_id" binding:"required"`
}

type AddItemHTTPResponse struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Version       int               `json:"version,omitempty"`
	Created       bool              `json:"created,omitempty"`
	InStock       bool              `json:"in_stock"`
	LineItems     []domain.LineItem `json:"line_items,omitempty"`
}

type TransitionHTTPRequest struct {
	Status string `json:"status" binding:"required"`
}

type TotalHTTPResponse struct {
	Amount            string   `json:"amount"`
	Incomplete        bool     `json:"incomplete"`
	MissingProductIDs []string `json:"missing_product_ids,omitempty"`
}

type TransactionHTTPResponse struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Status    string             `json:"status"`
	Version   int                `json:"version"`
	LineItems []domain.LineItem  `json:"line_items"`
	Total     *TotalHTTPResponse `json:"total,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type ErrorHTTPResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

func NewHTTPHandler(cartService *service.CartService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{cartService: cartService, logger: logger}
}

// Router builds the gin engine with tracing middleware and every route mounted.
func (h *HTTPHandler) Router(serviceName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	api.POST("/cart/items", h.AddItem)
	api.GET("/transactions", h.ListTransactions)
	api.GET("/transactions/:id", h.GetTransaction)
	api.PATCH("/transactions/:id/status", h.TransitionStatus)
	api.POST("/tasks/validate", h.ValidateTask)
	return r
}

func (h *HTTPHandler) AddItem(c *gin.Context) {
	var req AddItemHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}

	snap, err := h.cartService.AddItemOnce(c.Request.Context(), req.RequestID, req.UserID, req.ProductID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, AddItemHTTPResponse{
		Success:       true,
		Message:       snap.Message,
		TransactionID: snap.TransactionID,
		Version:       snap.Version,
		Created:       snap.Created,
		InStock:       snap.InStock,
		LineItems:     snap.LineItems,
	})
}

func (h *HTTPHandler) ListTransactions(c *gin.Context) {
	filter, err := domain.FilterForListing(c.Query("user_id"), c.Query("listing"))
	if err != nil {
		h.writeError(c, err)
		return
	}

	views, err := h.cartService.ListTransactions(c.Request.Context(), filter)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]TransactionHTTPResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toTransactionResponse(v.Transaction, &v.Total))
	}
	c.JSON(http.StatusOK, gin.H{"transactions": out})
}

func (h *HTTPHandler) GetTransaction(c *gin.Context) {
	view, err := h.cartService.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(view.Transaction, &view.Total))
}

func (h *HTTPHandler) TransitionStatus(c *gin.Context) {
	var req TransitionHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}

	status, err := domain.ParseTransactionStatus(req.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	tx, err := h.cartService.TransitionStatus(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTransactionResponse(tx, nil))
}

func (h *HTTPHandler) ValidateTask(c *gin.Context) {
	var form domain.TaskForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid request body"})
		return
	}

	if errs := domain.ValidateTaskForm(form); errs != nil {
		c.JSON(http.StatusBadRequest, ErrorHTTPResponse{Message: "invalid task", Fields: errs})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	resp := ErrorHTTPResponse{Message: "internal error"}

	var verr *domain.ValidationError
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		status = http.StatusConflict
		resp.Message = "duplicate request"
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Message = verr.Error()
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
		resp.Message = err.Error()
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		resp.Message = "not found"
	case errors.Is(err, domain.ErrInvalidState):
		status = http.StatusConflict
		resp.Message = err.Error()
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
		resp.Message = "concurrent update, please retry"
		resp.Retryable = true
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, resp)
}

// toTransactionResponse renders tx; total is nil when it was not computed.
func toTransactionResponse(tx domain.Transaction, total *service.Total) TransactionHTTPResponse {
	items := tx.LineItems
	if items == nil {
		items = []domain.LineItem{}
	}

	resp := TransactionHTTPResponse{
		ID:        tx.ID,
		UserID:    tx.UserID,
		Status:    string(tx.Status),
		Version:   tx.Version,
		LineItems: items,
		CreatedAt: tx.CreatedAt,
		UpdatedAt: tx.UpdatedAt,
	}
	if total != nil {
		resp.Total = &TotalHTTPResponse{
			Amount:            total.Amount.StringFixed(2),
			Incomplete:        total.Incomplete,
			MissingProductIDs: total.MissingProductIDs,
		}
	}
	return resp
}

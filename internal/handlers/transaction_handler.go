package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httpresp"
	"github.com/BruksfildServices01/marketplace-exchange/internal/middleware"
	ucTransaction "github.com/BruksfildServices01/marketplace-exchange/internal/usecase/transaction"
)

// ======================================================
// HANDLER
// ======================================================

type TransactionHandler struct {
	create  *ucTransaction.CreateTransaction
	get     *ucTransaction.GetTransaction
	decide  *ucTransaction.DecideTransaction
	pay     *ucTransaction.PayTransaction
	retry   *ucTransaction.RetryCapture
	message *ucTransaction.AppendMessage
	seen    *ucTransaction.MarkSeen
}

func NewTransactionHandler(
	create *ucTransaction.CreateTransaction,
	get *ucTransaction.GetTransaction,
	decide *ucTransaction.DecideTransaction,
	pay *ucTransaction.PayTransaction,
	retry *ucTransaction.RetryCapture,
	message *ucTransaction.AppendMessage,
	seen *ucTransaction.MarkSeen,
) *TransactionHandler {
	return &TransactionHandler{
		create:  create,
		get:     get,
		decide:  decide,
		pay:     pay,
		retry:   retry,
		message: message,
		seen:    seen,
	}
}

// ======================================================
// REQUESTS
// ======================================================

type CreateTransactionRequest struct {
	ListingID uint   `json:"listing_id"`
	Quantity  int64  `json:"quantity"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Message   string `json:"message"`

	PaymentToken    string `json:"payment_token"`
	PayerEmail      string `json:"payer_email"`
	PaymentMethodID string `json:"payment_method_id"`
}

type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
}

type PayRequest struct {
	PaymentToken    string `json:"payment_token"`
	PayerEmail      string `json:"payer_email"`
	PaymentMethodID string `json:"payment_method_id"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

// ======================================================
// CREATE
// ======================================================

// Create starts a transaction. Times without an offset are read as UTC.
func (h *TransactionHandler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", err.Error())
		return
	}

	start, err := parseOptionalTime(req.Start, time.UTC)
	if err != nil {
		httperr.BadRequest(c, "invalid_start", "start must be RFC 3339 or "+timeFormatHint)
		return
	}
	end, err := parseOptionalTime(req.End, time.UTC)
	if err != nil {
		httperr.BadRequest(c, "invalid_end", "end must be RFC 3339 or "+timeFormatHint)
		return
	}

	res, err := h.create.Execute(c.Request.Context(), ucTransaction.CreateInput{
		CommunityID:     middleware.CommunityID(c),
		ListingID:       req.ListingID,
		RequesterID:     middleware.PersonID(c),
		Quantity:        req.Quantity,
		Start:           start,
		End:             end,
		Message:         req.Message,
		PayerToken:      req.PaymentToken,
		PayerEmail:      req.PayerEmail,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	httpresp.Created(c, res)
}

// ======================================================
// READ
// ======================================================

func (h *TransactionHandler) Get(c *gin.Context) {
	d, err := h.get.Execute(c.Request.Context(), c.Param("id"), middleware.PersonID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, d)
}

// ======================================================
// STATE CHANGES
// ======================================================

func (h *TransactionHandler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", "decision is required")
		return
	}

	tx, err := h.decide.Execute(c.Request.Context(), ucTransaction.DecideInput{
		TransactionID: c.Param("id"),
		ActorID:       middleware.PersonID(c),
		Decision:      req.Decision,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, tx)
}

func (h *TransactionHandler) Pay(c *gin.Context) {
	var req PayRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "invalid_request", err.Error())
			return
		}
	}

	tx, err := h.pay.Execute(c.Request.Context(), ucTransaction.PayInput{
		TransactionID:   c.Param("id"),
		PayerID:         middleware.PersonID(c),
		PayerToken:      req.PaymentToken,
		PayerEmail:      req.PayerEmail,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, tx)
}

func (h *TransactionHandler) RetryCapture(c *gin.Context) {
	tx, err := h.retry.Execute(c.Request.Context(), ucTransaction.RetryCaptureInput{
		TransactionID: c.Param("id"),
		ActorID:       middleware.PersonID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.OK(c, tx)
}

// ======================================================
// CONVERSATION
// ======================================================

func (h *TransactionHandler) AppendMessage(c *gin.Context) {
	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httperr.BadRequest(c, "invalid_request", err.Error())
		return
	}

	msg, err := h.message.Execute(c.Request.Context(), ucTransaction.MessageInput{
		TransactionID: c.Param("id"),
		SenderID:      middleware.PersonID(c),
		Content:       req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.Created(c, msg)
}

func (h *TransactionHandler) MarkSeen(c *gin.Context) {
	err := h.seen.Execute(c.Request.Context(), ucTransaction.SeenInput{
		TransactionID: c.Param("id"),
		PersonID:      middleware.PersonID(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	httpresp.NoContent(c)
}

// Inbound HTTP handler.
//
// POST /inbound is the JSON chat transport: a gateway posts one participant
// message and receives the bot's reply in the response body. Gateways that
// redeliver on timeout send an Idempotency-Key; the first reply for
// (identifier, key) is stored and replayed for redeliveries.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tbourn/go-feedback-bot/internal/domain"
	"github.com/tbourn/go-feedback-bot/internal/http/middleware"
	"github.com/tbourn/go-feedback-bot/internal/repo"
)

// InboundRequest is one participant message.
type InboundRequest struct {
	// Identifier is the stable participant id assigned by the chat gateway.
	Identifier string `json:"identifier" binding:"required,max=64" example:"42"`
	// Text is the raw message text.
	Text string `json:"text" binding:"required" example:"/start"`
}

// InboundResponse is the reply to an inbound message. Options, when present,
// are choices the gateway should render as buttons.
type InboundResponse struct {
	Text    string   `json:"text" example:"Please select your position:"`
	Options []string `json:"options,omitempty" example:"MANAGER,MECHANIC,RECEPTIONIST,OTHER"`
}

// InboundScope reads the identifier from the JSON body without consuming it,
// for use as the idempotency (and rate-limit) scope. The body is cached on
// the context so the handler can bind it again.
func InboundScope(c *gin.Context) string {
	var req InboundRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		return ""
	}
	return strings.TrimSpace(req.Identifier)
}

// Inbound godoc
// @ID          postInbound
// @Summary     Deliver a chat message
// @Description Runs one participant message through the conversation and returns the reply. Messages for the same identifier are processed in arrival order.
// @Tags        Transport
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Replays the stored reply for redeliveries"  example(update-1799)
// @Param       body             body    handlers.InboundRequest  true  "Inbound message"
//
// @Success     200  {object}  handlers.InboundResponse
// @Header      200  {string}  Idempotency-Replayed  "true when served from a stored receipt"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Failure     503  {object}  handlers.ErrorResponse  "Storage unavailable, retry"
// @Router      /inbound [post]
func (h *Handlers) Inbound(c *gin.Context) {
	ctx := c.Request.Context()

	var req InboundRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "identifier and text are required")
		return
	}
	id := strings.TrimSpace(req.Identifier)
	if id == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "identifier and text are required")
		return
	}

	// Idempotency (replay path).
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.receipts != nil {
		if rec, err := h.receipts.Get(ctx, id, idemKey, h.now().UTC()); err == nil {
			replay(c, rec)
			return
		}
	}

	reply, err := h.conv.HandleInboundText(ctx, id, req.Text)
	if err != nil {
		failWith(c, conversationError(err))
		return
	}

	// Idempotency (store path); a concurrent redelivery that stored first wins.
	if idemKey != "" && h.receipts != nil {
		_, err := h.receipts.Create(ctx, id, idemKey, reply.Text, reply.Options, http.StatusOK, h.receiptTTL)
		if errors.Is(err, repo.ErrDuplicate) {
			if rec, gerr := h.receipts.Get(ctx, id, idemKey, h.now().UTC()); gerr == nil {
				replay(c, rec)
				return
			}
		} else if err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("store inbound receipt")
		}
	}

	ok(c, http.StatusOK, InboundResponse{Text: reply.Text, Options: reply.Options})
}

func replay(c *gin.Context, rec *domain.InboundReceipt) {
	c.Header("Idempotency-Replayed", "true")
	status := rec.Status
	if status == 0 {
		status = http.StatusOK
	}
	ok(c, status, InboundResponse{Text: rec.ReplyText, Options: repo.ReceiptOptions(rec)})
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/payment"
)

// gatewayStatus is the answer for each classified payment failure.
var gatewayStatus = map[payment.ErrorKind]int{
	payment.CardDeclined:         http.StatusPaymentRequired,
	payment.InvalidRequest:       http.StatusUnprocessableEntity,
	payment.RateLimited:          http.StatusTooManyRequests,
	payment.AuthenticationFailed: http.StatusBadGateway,
	payment.ConnectionError:      http.StatusServiceUnavailable,
	payment.Unclassified:         http.StatusBadGateway,
	payment.AlreadyCaptured:      http.StatusConflict,
}

// writeError translates a use case error once, at the edge.
func writeError(c *gin.Context, err error) {
	if httperr.WriteBusiness(c, err) {
		return
	}

	if ge, ok := payment.AsGatewayError(err); ok {
		status, known := gatewayStatus[ge.Kind]
		if !known {
			status = http.StatusBadGateway
		}
		if status >= 500 {
			_ = c.Error(err)
		}
		httperr.Write(c, status, "payment_"+string(ge.Kind), ge.UserMessage())
		return
	}

	_ = c.Error(err)
	httperr.Internal(c, "internal_error", "Something went wrong.")
}

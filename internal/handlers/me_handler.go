package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	domain "github.com/BruksfildServices01/marketplace-exchange/internal/domain/transaction"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httpresp"
	"github.com/BruksfildServices01/marketplace-exchange/internal/middleware"
	"github.com/BruksfildServices01/marketplace-exchange/internal/timezone"
)

type MeHandler struct {
	catalog domain.Catalog
}

func NewMeHandler(catalog domain.Catalog) *MeHandler {
	return &MeHandler{catalog: catalog}
}

// GetMe shows who the token belongs to and whether each gateway can pay
// them out.
func (h *MeHandler) GetMe(c *gin.Context) {
	p, err := h.catalog.Person(c.Request.Context(), middleware.PersonID(c))
	if errors.Is(err, domain.ErrRecordNotFound) {
		httperr.NotFound(c, "person_not_found", "person not found")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	httpresp.OK(c, gin.H{
		"person": gin.H{
			"id":           p.ID,
			"display_name": p.DisplayName,
			"email":        p.Email,
			"timezone":     timezone.Location(p.Timezone).String(),
			"community_id": middleware.CommunityID(c),
		},
		"payouts": gin.H{
			"omise":       p.OmiseRecipientID != "",
			"mercadopago": p.MercadoPagoAccount != "",
		},
	})
}

// Package process decides how a listing's transactions move money.
package process

import (
	"fmt"
	"strings"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

type Kind string

const (
	None         Kind = "none"
	Preauthorize Kind = "preauthorize"
	Postpay      Kind = "postpay"
)

type Gateway string

const (
	GatewayNone        Gateway = "none"
	GatewayOmise       Gateway = "omise"
	GatewayMercadoPago Gateway = "mercadopago"
)

// Policy is the resolved process and gateway of a listing.
type Policy struct {
	Process Kind    `json:"process"`
	Gateway Gateway `json:"gateway"`
}

// MovesMoney reports whether the policy involves a gateway.
func (p Policy) MovesMoney() bool {
	return p.Process != None
}

func ParseGateway(s string) (Gateway, error) {
	switch g := Gateway(strings.ToLower(strings.TrimSpace(s))); g {
	case "":
		return GatewayNone, nil
	case GatewayNone, GatewayOmise, GatewayMercadoPago:
		return g, nil
	}
	return "", fmt.Errorf("unknown payment gateway %q", s)
}

func parseKind(s string) (Kind, bool) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case None, Preauthorize, Postpay:
		return k, true
	}
	return "", false
}

// Resolve picks the process the listing references among the community's
// configured processes, paired with the community gateway.
func Resolve(listing *models.Listing, community *models.Community) (Policy, error) {
	var cfg *models.ProcessConfig
	for i := range community.Processes {
		if community.Processes[i].ID == listing.ProcessID {
			cfg = &community.Processes[i]
			break
		}
	}
	if cfg == nil {
		return Policy{}, httperr.New(
			httperr.KindUnknownProcess,
			"unknown_process",
			fmt.Sprintf("process %d is not configured for community %d", listing.ProcessID, community.ID),
		)
	}

	kind, ok := parseKind(cfg.Process)
	if !ok {
		return Policy{}, httperr.New(
			httperr.KindUnknownProcess,
			"unknown_process",
			fmt.Sprintf("process %d has unknown kind %q", cfg.ID, cfg.Process),
		)
	}
	if kind == None {
		return Policy{Process: None, Gateway: GatewayNone}, nil
	}

	gw, err := ParseGateway(community.PaymentGateway)
	if err != nil || gw == GatewayNone {
		return Policy{}, Unsupported(kind, Gateway(community.PaymentGateway))
	}
	return Policy{Process: kind, Gateway: gw}, nil
}

func Unsupported(kind Kind, gw Gateway) error {
	return httperr.New(
		httperr.KindUnsupportedProcess,
		"unsupported_process",
		fmt.Sprintf("process %s cannot run on gateway %q", kind, gw),
	)
}

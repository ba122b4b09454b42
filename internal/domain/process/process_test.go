package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
)

func community(gateway string) *models.Community {
	return &models.Community{
		ID:             1,
		PaymentGateway: gateway,
		Processes: []models.ProcessConfig{
			{ID: 10, CommunityID: 1, Process: "none"},
			{ID: 11, CommunityID: 1, Process: "preauthorize"},
			{ID: 12, CommunityID: 1, Process: "postpay"},
			{ID: 13, CommunityID: 1, Process: "barter"},
		},
	}
}

func TestResolve(t *testing.T) {
	p, err := Resolve(&models.Listing{ProcessID: 11}, community("omise"))
	require.NoError(t, err)
	assert.Equal(t, Policy{Process: Preauthorize, Gateway: GatewayOmise}, p)
	assert.True(t, p.MovesMoney())

	p, err = Resolve(&models.Listing{ProcessID: 12}, community("MercadoPago"))
	require.NoError(t, err)
	assert.Equal(t, Policy{Process: Postpay, Gateway: GatewayMercadoPago}, p)
}

func TestResolveNoneIgnoresGateway(t *testing.T) {
	p, err := Resolve(&models.Listing{ProcessID: 10}, community("omise"))
	require.NoError(t, err)
	assert.Equal(t, Policy{Process: None, Gateway: GatewayNone}, p)
	assert.False(t, p.MovesMoney())
}

func TestResolveUnknownProcess(t *testing.T) {
	_, err := Resolve(&models.Listing{ProcessID: 99}, community("omise"))
	assert.True(t, httperr.Is(err, httperr.KindUnknownProcess))

	_, err = Resolve(&models.Listing{ProcessID: 13}, community("omise"))
	assert.True(t, httperr.Is(err, httperr.KindUnknownProcess))
}

func TestResolveUnsupportedGateway(t *testing.T) {
	_, err := Resolve(&models.Listing{ProcessID: 11}, community("none"))
	assert.True(t, httperr.Is(err, httperr.KindUnsupportedProcess))

	_, err = Resolve(&models.Listing{ProcessID: 12}, community("paypal"))
	assert.True(t, httperr.Is(err, httperr.KindUnsupportedProcess))
}

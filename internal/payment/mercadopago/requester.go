package mercadopago

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mercadopago/sdk-go/pkg/requester"
)

const paymentsPath = "/v1/payments"

// holdRequester writes "capture": false into payment creates that leave the
// field out. The SDK tags Request.Capture with omitempty, so a hold would
// otherwise reach the API without it and be captured on the spot.
type holdRequester struct {
	next requester.Requester
}

func (h *holdRequester) Do(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && strings.TrimRight(req.URL.Path, "/") == paymentsPath && req.Body != nil {
		if err := forceHold(req); err != nil {
			return nil, err
		}
	}
	return h.next.Do(req)
}

func forceHold(req *http.Request) error {
	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return fmt.Errorf("read payment body: %w", err)
	}

	body, err := withHold(raw)
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return nil
}

func withHold(raw []byte) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode payment body: %w", err)
	}
	if _, ok := fields["capture"]; ok {
		return raw, nil
	}
	fields["capture"] = json.RawMessage("false")
	return json.Marshal(fields)
}

package httppresentation

import (
	"net/http"

	appPayment "github.com/Zhima-Mochi/storefront/internal/application/payment"
)

const (
	headerSignature       = "X-Signature"
	headerStripeSignature = "Stripe-Signature"
)

type webhookResponse struct {
	Received  bool   `json:"received"`
	EventID   string `json:"event_id,omitempty"`
	Ignored   bool   `json:"ignored,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Changed   bool   `json:"changed"`
}

// handleWebhook passes the raw body through untouched; the signature covers
// the exact bytes.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := readBody(w, r)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	sig := r.Header.Get(headerStripeSignature)
	if sig == "" {
		sig = r.Header.Get(headerSignature)
	}

	res, err := h.deps.Webhook.Execute(r.Context(), appPayment.WebhookInput{Payload: payload, Signature: sig})
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, webhookResponse{
		Received:  true,
		EventID:   res.EventID,
		Ignored:   res.Ignored,
		Duplicate: res.Duplicate,
		Changed:   res.Changed,
	})
}

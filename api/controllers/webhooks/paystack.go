package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/adesolafarms/farmstore-backend/api/responses"
	paymentsvc "github.com/adesolafarms/farmstore-backend/internal/payments"
	pkgerrors "github.com/adesolafarms/farmstore-backend/pkg/errors"
	"github.com/adesolafarms/farmstore-backend/pkg/logger"
)

const (
	paystackSignatureHeader = "x-paystack-signature"
	webhookConsumer         = "paystack-webhook"
	maxWebhookBody          = 1 << 20
)

type paystackReconciler interface {
	Reconcile(ctx context.Context, reference, channel string) (*paymentsvc.ReconcileResult, error)
}

type paystackClient interface {
	SigningSecret() string
}

type webhookGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID        int64  `json:"id"`
		Reference string `json:"reference"`
		Status    string `json:"status"`
	} `json:"data"`
}

// Paystack receives transaction lifecycle events. The raw body is
// authenticated with HMAC-SHA512 before any parsing; once the signature
// checks out, internal failures are swallowed with a 200 so Paystack does
// not retry forever. The verify endpoint remains the authoritative path.
func Paystack(svc paystackReconciler, client paystackClient, guard webhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook dependencies unavailable"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(paystackSignatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature missing"))
			return
		}
		if !validSignature(payload, signature, client.SigningSecret()) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch"))
			return
		}

		// The signature has authenticated the sender; from here on failures
		// are ours to log, not Paystack's to retry against.
		var event paystackEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			if logg != nil {
				logg.Error(ctx, "unparseable webhook payload", err)
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if event.Event != "charge.success" {
			if logg != nil {
				logg.Info(logg.WithField(ctx, "event", event.Event), "ignoring webhook event")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}
		if event.Data.Reference == "" {
			if logg != nil {
				logg.Warn(ctx, "charge.success webhook without a reference")
			}
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		// Paystack carries no event id, so the charge id plus reference
		// stands in as the dedupe key.
		eventID := fmt.Sprintf("%s:%d:%s", event.Event, event.Data.ID, event.Data.Reference)
		alreadyProcessed, err := guard.CheckAndMarkProcessed(ctx, webhookConsumer, eventID)
		if err != nil {
			// Reconciliation is idempotent; a broken guard should not drop
			// the event.
			if logg != nil {
				logg.Error(ctx, "webhook idempotency check failed", err)
			}
		} else if alreadyProcessed {
			responses.WriteSuccess(w, map[string]bool{"received": true})
			return
		}

		if _, err := svc.Reconcile(ctx, event.Data.Reference, paymentsvc.ChannelWebhook); err != nil {
			_ = guard.Delete(ctx, webhookConsumer, eventID)
			if logg != nil {
				logCtx := logg.WithReference(ctx, event.Data.Reference)
				logg.Error(logCtx, "webhook reconciliation failed", err)
			}
		}

		responses.WriteSuccess(w, map[string]bool{"received": true})
	}
}

func validSignature(payload []byte, signature, secret string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

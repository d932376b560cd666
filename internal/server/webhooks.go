package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/rebill/internal/subscription/domain"
	"go.uber.org/zap"
)

// The payment webhook follows the Adyen standard notification envelope: a
// batch of items, each wrapping one NotificationRequestItem. The subscription
// is addressed through additionalData.subscriptionId, which the engine sets
// on every payment it initiates.
type webhookEnvelope struct {
	Live              string        `json:"live"`
	NotificationItems []webhookItem `json:"notificationItems"`
}

type webhookItem struct {
	NotificationRequestItem notificationRequestItem `json:"NotificationRequestItem"`
}

type notificationRequestItem struct {
	Amount struct {
		Value    int64  `json:"value"`
		Currency string `json:"currency"`
	} `json:"amount"`
	EventCode         string            `json:"eventCode"`
	MerchantReference string            `json:"merchantReference"`
	PSPReference      string            `json:"pspReference"`
	PaymentMethod     string            `json:"paymentMethod"`
	Operations        []string          `json:"operations"`
	Success           string            `json:"success"`
	AdditionalData    map[string]string `json:"additionalData"`
}

func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	var envelope webhookEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	for _, item := range envelope.NotificationItems {
		n := item.NotificationRequestItem

		subscriptionID := strings.TrimSpace(n.AdditionalData["subscriptionId"])
		if subscriptionID == "" {
			s.log.Warn("payment notification without subscription id",
				zap.String("merchant_reference", n.MerchantReference),
				zap.String("event_code", n.EventCode),
			)
			continue
		}

		err := s.subscriptionSvc.ReceiveNotification(c.Request.Context(), subscriptionID, subscriptiondomain.Notification{
			MerchantReference: n.MerchantReference,
			AmountCents:       n.Amount.Value,
			Currency:          n.Amount.Currency,
			Status:            strings.ToLower(n.EventCode),
			Success:           strings.EqualFold(n.Success, "true"),
			PSPReference:      n.PSPReference,
			PaymentMethod:     n.PaymentMethod,
			Operations:        strings.Join(n.Operations, ","),
			TestMode:          envelope.Live != "true",
			Params:            additionalDataParams(n.AdditionalData),
		})
		if err != nil {
			// Unknown subscriptions are acknowledged so the provider stops
			// retrying a notification we can never apply.
			if errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound) ||
				errors.Is(err, subscriptiondomain.ErrInvalidSubscriptionID) {
				s.log.Warn("payment notification for unknown subscription",
					zap.String("subscription_id", subscriptionID),
					zap.String("merchant_reference", n.MerchantReference),
				)
				continue
			}
			AbortWithError(c, err)
			return
		}
	}

	// Adyen expects this exact body before it marks the batch delivered.
	c.String(http.StatusOK, "[accepted]")
}

func additionalDataParams(data map[string]string) map[string]any {
	if len(data) == 0 {
		return nil
	}
	params := make(map[string]any, len(data))
	for k, v := range data {
		params[k] = v
	}
	return params
}

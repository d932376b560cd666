package domain

// Notification is an inbound settlement event from a payment service, such
// as an out-of-band bank transfer confirmation or a gateway webhook.
// MerchantReference is the idempotency key: a second notification carrying a
// reference already in the ledger is dropped.
type Notification struct {
	MerchantReference string         `json:"merchant_reference"`
	AmountCents       int64          `json:"amount_cents"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	Success           bool           `json:"success"`
	PSPReference      string         `json:"psp_reference"`
	PaymentMethod     string         `json:"payment_method"`
	Operations        string         `json:"operations"`
	TestMode          bool           `json:"test_mode"`
	Params            map[string]any `json:"params"`
}

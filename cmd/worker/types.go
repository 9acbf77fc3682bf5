package main

// ReconcileMessage asks the worker to confirm one session against one order.
type ReconcileMessage struct {
	SessionID string `json:"session_id"`
	OrderID   string `json:"order_id"`
}

// stripeEvent is a Stripe event as delivered by the EventBridge partner
// source, with the checkout session under detail.data.object.
type stripeEvent struct {
	ID         string `json:"id"`
	DetailType string `json:"detail-type"`
	Detail     struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID                string            `json:"id"`
				ClientReferenceID string            `json:"client_reference_id"`
				Metadata          map[string]string `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	} `json:"detail"`
}

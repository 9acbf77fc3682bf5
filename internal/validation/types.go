package validation

// CheckoutRequest is the intake form for POST /create-checkout-session.
// Only these fields are kept; anything else in the body (including a client
// supplied amount) is discarded at bind time.
type CheckoutRequest struct {
	RecipientName string `json:"recipientName" validate:"omitempty,max=80,printable"`
	Email         string `json:"email" validate:"omitempty,email,max=254"`
	Genre         string `json:"genre" validate:"omitempty,max=40,printable"`
	VoiceGender   string `json:"voiceGender" validate:"omitempty,max=20,printable"`
	RecipientType string `json:"recipientType" validate:"omitempty,max=40,printable"`
	DeliverySpeed string `json:"deliverySpeed" validate:"omitempty,max=20,printable"`
	Occasion      string `json:"occasion" validate:"omitempty,max=80,printable"`
	Story         string `json:"story" validate:"omitempty,max=4000"`
}

// FormData returns the non-empty fields keyed by their JSON names.
func (r CheckoutRequest) FormData() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("recipientName", r.RecipientName)
	set("email", r.Email)
	set("genre", r.Genre)
	set("voiceGender", r.VoiceGender)
	set("recipientType", r.RecipientType)
	set("deliverySpeed", r.DeliverySpeed)
	set("occasion", r.Occasion)
	set("story", r.Story)
	return out
}

package view

// CheckoutResponse is returned once per checkout. GuestToken is never shown
// again; it authorizes order lookups without a login.
type CheckoutResponse struct {
	Order          OrderDetail `json:"order"`
	ClientSecret   string      `json:"client_secret"`
	PublishableKey string      `json:"publishable_key,omitempty"`
	GuestToken     string      `json:"guest_token"`
	AccountCreated bool        `json:"account_created"`
}

type CompleteResponse struct {
	Order   OrderDetail `json:"order"`
	Outcome string      `json:"outcome"`
}

// RetryResponse carries the client secret for a new attempt on a declined
// order. The guest token from checkout stays valid.
type RetryResponse struct {
	Order          OrderDetail `json:"order"`
	ClientSecret   string      `json:"client_secret"`
	PublishableKey string      `json:"publishable_key,omitempty"`
}

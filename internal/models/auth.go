package models

// TokenResponse is returned by login, register and OAuth callbacks.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        *User  `json:"user"`
}

// ProviderProfile is the normalized identity a provider callback yields.
// Email may be empty (the wiki provider does not expose one reliably).
type ProviderProfile struct {
	Provider          string
	ProviderAccountID string
	Email             string
	EmailVerified     bool
	FullName          string
}

package schemas

import "time"

// TokenResponse is the LinkedIn OAuth token exchange response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	// ExpiresAt is the absolute expiry computed at save time; it is not
	// part of the LinkedIn response.
	ExpiresAt int64 `json:"expires_at"`
}

// Expired reports whether the token's absolute expiry has passed.
func (t *TokenResponse) Expired() bool {
	return t.ExpiresAt != 0 && t.ExpiresAt < time.Now().Unix()
}

package model

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Bio      string `json:"bio,omitempty"`
}

// AuthResponse is returned by signin, signup and refresh-token.
type AuthResponse struct {
	UserID       string `json:"userId"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Message      string `json:"message,omitempty"`
}

// RefreshRequest is the body of refresh-token and signout.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

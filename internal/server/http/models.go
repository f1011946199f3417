package httpserver

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	APIKey   string `json:"api_key" binding:"required"`
}

// An empty password is left to the service, which answers it like a wrong one.
type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"verification_code" binding:"required"`
}

type changeKeyRequest struct {
	Email     string `json:"email" binding:"required"`
	NewAPIKey string `json:"new_api_key" binding:"required"`
}

type changePasswordRequest struct {
	Email       string `json:"email" binding:"required"`
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// MessageResponse is the success body of the account endpoints.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LoginResponse carries the bound api key and whether the email is verified.
type LoginResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	APIKey    string `json:"api_key"`
	Activated bool   `json:"activated"`
}

// KeyResponse echoes the authorized api key.
type KeyResponse struct {
	Success bool   `json:"success"`
	APIKey  string `json:"api_key"`
}

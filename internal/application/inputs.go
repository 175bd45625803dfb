package application

// CreateUserInput registers a local account.
type CreateUserInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Username string `json:"username" validate:"omitempty,min=3,max=30,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,pwd"`
	Bio      string `json:"bio" validate:"max=280"`
}

// LoginInput identifies an account by email or username.
type LoginInput struct {
	Email    string `json:"email" validate:"required_without=Username"`
	Username string `json:"username" validate:"required_without=Email"`
	Password string `json:"password" validate:"required"`
}

// GoogleUserInput is what a client obtained from Google sign-in.
// Email and Name are claims; only the token is checked with Google.
type GoogleUserInput struct {
	AuthToken string `json:"authToken" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Name      string `json:"name" validate:"max=100"`
	PhotoURL  string `json:"photoUrl" validate:"omitempty,url"`
	Provider  string `json:"provider" validate:"omitempty,oneof=google GOOGLE"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,pwd,nefield=CurrentPassword"`
}

package credentials

// RegisterInput carries a validated sign-up form.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

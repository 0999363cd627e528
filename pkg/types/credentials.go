package types

import "errors"

// Credentials is the immutable identifier/secret pair for the portal
// account. The password is never logged and never persisted beyond the
// session lifetime.
type Credentials struct {
	Email    string
	Password string
}

// Validate checks that both fields are present.
func (c Credentials) Validate() error {
	if c.Email == "" {
		return errors.New("missing email")
	}
	if c.Password == "" {
		return errors.New("missing password")
	}
	return nil
}

// String redacts the secret so Credentials can't leak through %v logging.
func (c Credentials) String() string {
	return c.Email + ":[redacted]"
}

package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	CustomerID string
	JTI        string
}

// AccessTokenClaims represents the typed JWT presented by storefront clients.
type AccessTokenClaims struct {
	CustomerID string `json:"customer_id"`
	jwt.RegisteredClaims
}

// Credentials pairs the verified claims with the raw token they came from.
func (c *AccessTokenClaims) Credentials(token string) Credentials {
	return Credentials{Token: token, CustomerID: c.CustomerID}
}

// Credentials is the bearer capability handed to every call that talks to the
// store API on a customer's behalf.
type Credentials struct {
	Token      string
	CustomerID string
}

// Valid reports whether both the token and the customer are present.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Token) != "" && strings.TrimSpace(c.CustomerID) != ""
}

// BearerHeader renders the Authorization header value.
func (c Credentials) BearerHeader() string {
	return "Bearer " + strings.TrimSpace(c.Token)
}

package common

// AuthorizationHeaderName carries the bearer session token on inbound requests.
const AuthorizationHeaderName = "Authorization"

// BearerPrefix precedes the session token in the Authorization header.
const BearerPrefix = "Bearer "

// ResetTokenSize is the number of random bytes in a password reset token.
// The hex encoding doubles it to 64 characters.
const ResetTokenSize = 32

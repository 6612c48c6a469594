// Package auth implements two-factor login and role based authorization for
// a small web application.
//
// Login runs in two phases:
//   - SubmitCredentials checks username and password against the bcrypt hash
//     and, on success, opens a short lived PendingSession. No token is issued.
//   - SubmitSecondFactor checks a TOTP code against the user's enrolled
//     secret. A valid code consumes the pending session exactly once and
//     mints a signed JWT carrying the user id and the role at that moment.
//
// Registration creates the user with a fresh TOTP secret and returns the
// Enrollment (otpauth URI and QR code) to show once.
//
// Guard turns a bearer token into an Actor. Authorization checks compare the
// role captured in the token with a RoleSet allow-list, so a role changed in
// the store takes effect on the next login, not on tokens already issued.
//
// Pending sessions live in a PendingSessionStore. MemorySessionStore serves
// single instance deployments, adapters/redisstore shares them across
// instances.
package auth

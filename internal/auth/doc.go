// Package auth provides authentication for souk-gateway.
//
// # Tokens
//
// Customers and sellers authenticate with HS256 JWTs signed with the
// configured jwt_secret. A token carries:
//
//   - sub: participant identity ID (required)
//   - role: "customer" or "seller" (required)
//   - name: display name (optional, defaults to sub)
//   - exp/iat: expiry and issue time
//
// # Gate
//
// Gate.Authenticate verifies a token and upserts the participant it names.
// A participant's role is fixed the first time it is seen; a later token that
// claims a different role fails with ErrRoleMismatch.
//
// The same Gate backs both entry points:
//
//	HTTPAuthMiddleware(gate) // bearer header on /api/*
//	gate.Authenticate(ctx, token) // first frame of the live channel
//
// Handlers read the caller with FromContext.
package auth

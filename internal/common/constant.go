package common

// AuthorizationHeaderName is the HTTP header / gRPC metadata key carrying the
// backend token as "Bearer <token>".
const AuthorizationHeaderName = "authorization"

// BearerScheme is the authorization scheme accepted by the authentication filter.
const BearerScheme = "Bearer"

// RedirectTokenParam is the query parameter carrying the freshly minted
// backend token on the post-login redirect.
const RedirectTokenParam = "token"

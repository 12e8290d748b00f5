package core

// EndpointProvider provides a list of endpoints to register dynamically
type EndpointProvider interface {
	Endpoints() []*Endpoint
}

// Guard is the authentication requirement in front of an endpoint.
type Guard string

const (
	GuardPublic        Guard = "public"
	GuardAuthenticated Guard = "authenticated"
	GuardAdmin         Guard = "admin"
)

// Token abilities checked by the built-in endpoints.
const (
	AbilityProfileRead  = "profile:read"
	AbilityProfileWrite = "profile:write"
	AbilityTokensRead   = "tokens:read"
	AbilityTokensWrite  = "tokens:write"
	AbilityAdmin        = "admin"
)

type Endpoint struct {
	Path   string
	Method string
	Guard  Guard

	// Ability a bearer token must carry; sessions always pass.
	Ability string

	Metadata EndpointMetadata
}

type EndpointMetadata struct {
	OperationID string
	Description string
	Responses   map[int]string
}

// ErrorResponse represents an error response structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

package services

import (
	"fmt"
	"sort"

	"github.com/lborres/bantay/core"
)

// Operation IDs of the built-in endpoints. HTTP adapters bind handlers by these.
const (
	OpHealth               = "health"
	OpRegister             = "register"
	OpLogin                = "login"
	OpLogout               = "logout"
	OpLogoutAll            = "logoutAll"
	OpRequestPasswordReset = "requestPasswordReset"
	OpResetPassword        = "resetPassword"
	OpChangePassword       = "changePassword"
	OpVerifyEmail          = "verifyEmail"
	OpResendVerification   = "resendVerification"
	OpGetProfile           = "getProfile"
	OpUpdateProfile        = "updateProfile"
	OpListTokens           = "listTokens"
	OpCreateToken          = "createToken"
	OpRevokeToken          = "revokeToken"
	OpAdminGetIdentity     = "adminGetIdentity"
	OpAdminDisableIdentity = "adminDisableIdentity"
)

// BaseEndpoints returns framework-agnostic endpoint specifications
// for all core authentication endpoints.
//
// Each endpoint is a template: adapters supply the handler for the
// OperationID and enforce the Guard and Ability in front of it.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path: "/health", Method: "GET", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpHealth,
				Description: "Liveness probe",
				Responses:   map[int]string{200: "ok"},
			},
		},
		{
			Path: "/register", Method: "POST", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpRegister,
				Description: "Create an identity with email and password",
				Responses:   map[int]string{201: "created", 202: "pending verification", 400: "invalid input", 409: "email taken"},
			},
		},
		{
			Path: "/login", Method: "POST", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpLogin,
				Description: "Sign in; trusted origins receive a session cookie, other clients a bearer token",
				Responses:   map[int]string{200: "signed in", 401: "invalid credentials", 429: "too many attempts"},
			},
		},
		{
			Path: "/logout", Method: "POST", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpLogout,
				Description: "Revoke the presented session or token",
				Responses:   map[int]string{204: "signed out"},
			},
		},
		{
			Path: "/logout-all", Method: "POST", Guard: core.GuardAuthenticated,
			Metadata: core.EndpointMetadata{
				OperationID: OpLogoutAll,
				Description: "Revoke every session and token of the caller",
				Responses:   map[int]string{204: "signed out everywhere", 401: "unauthenticated"},
			},
		},
		{
			Path: "/password/reset-request", Method: "POST", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpRequestPasswordReset,
				Description: "Send a password reset link if the email is registered",
				Responses:   map[int]string{200: "accepted", 429: "too many attempts"},
			},
		},
		{
			Path: "/password/reset", Method: "POST", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpResetPassword,
				Description: "Set a new password with a reset link token",
				Responses:   map[int]string{200: "password reset", 400: "invalid input", 410: "link expired or used"},
			},
		},
		{
			Path: "/profile/password", Method: "PUT", Guard: core.GuardAuthenticated, Ability: core.AbilityProfileWrite,
			Metadata: core.EndpointMetadata{
				OperationID: OpChangePassword,
				Description: "Change the caller's password",
				Responses:   map[int]string{204: "changed", 400: "invalid input", 401: "wrong current password"},
			},
		},
		{
			Path: "/email/verify", Method: "POST", Guard: core.GuardPublic,
			Metadata: core.EndpointMetadata{
				OperationID: OpVerifyEmail,
				Description: "Confirm an email address with a verification link token",
				Responses:   map[int]string{200: "verified", 400: "link invalid or expired"},
			},
		},
		{
			Path: "/email/resend", Method: "POST", Guard: core.GuardAuthenticated,
			Metadata: core.EndpointMetadata{
				OperationID: OpResendVerification,
				Description: "Send the verification link again",
				Responses:   map[int]string{202: "queued", 429: "too many attempts"},
			},
		},
		{
			Path: "/profile", Method: "GET", Guard: core.GuardAuthenticated, Ability: core.AbilityProfileRead,
			Metadata: core.EndpointMetadata{
				OperationID: OpGetProfile,
				Description: "Get the caller's profile",
				Responses:   map[int]string{200: "profile", 401: "unauthenticated"},
			},
		},
		{
			Path: "/profile", Method: "PATCH", Guard: core.GuardAuthenticated, Ability: core.AbilityProfileWrite,
			Metadata: core.EndpointMetadata{
				OperationID: OpUpdateProfile,
				Description: "Update the caller's profile fields",
				Responses:   map[int]string{200: "profile", 400: "invalid input", 401: "unauthenticated"},
			},
		},
		{
			Path: "/tokens", Method: "GET", Guard: core.GuardAuthenticated, Ability: core.AbilityTokensRead,
			Metadata: core.EndpointMetadata{
				OperationID: OpListTokens,
				Description: "List the caller's live bearer tokens",
				Responses:   map[int]string{200: "tokens"},
			},
		},
		{
			Path: "/tokens", Method: "POST", Guard: core.GuardAuthenticated, Ability: core.AbilityTokensWrite,
			Metadata: core.EndpointMetadata{
				OperationID: OpCreateToken,
				Description: "Create a named bearer token with optional abilities",
				Responses:   map[int]string{201: "created", 400: "unknown ability", 403: "ability not held"},
			},
		},
		{
			Path: "/tokens/:id", Method: "DELETE", Guard: core.GuardAuthenticated, Ability: core.AbilityTokensWrite,
			Metadata: core.EndpointMetadata{
				OperationID: OpRevokeToken,
				Description: "Revoke one of the caller's tokens",
				Responses:   map[int]string{204: "revoked", 404: "not found"},
			},
		},
		{
			Path: "/admin/identities/:id", Method: "GET", Guard: core.GuardAdmin, Ability: core.AbilityAdmin,
			Metadata: core.EndpointMetadata{
				OperationID: OpAdminGetIdentity,
				Description: "Get any identity",
				Responses:   map[int]string{200: "identity", 403: "not an admin", 404: "not found"},
			},
		},
		{
			Path: "/admin/identities/:id/disable", Method: "POST", Guard: core.GuardAdmin, Ability: core.AbilityAdmin,
			Metadata: core.EndpointMetadata{
				OperationID: OpAdminDisableIdentity,
				Description: "Soft-disable an identity and revoke its sessions and tokens",
				Responses:   map[int]string{204: "disabled", 403: "not an admin", 404: "not found"},
			},
		},
	}
}

// EndpointRegistry manages a collection of framework-agnostic endpoints
// and handles conflict detection for duplicate METHOD:PATH combinations.
type EndpointRegistry struct {
	// endpoints stores all registered endpoints keyed by "METHOD:PATH"
	endpoints map[string]*core.Endpoint
}

// NewEndpointRegistry creates a new registry with all base endpoints
// pre-registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}

	base := BaseEndpoints()
	for i := range base {
		// base endpoints never conflict with each other
		_ = reg.register(&base[i])
	}

	return reg
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// register adds a single endpoint to the registry with conflict detection.
func (r *EndpointRegistry) register(ep *core.Endpoint) error {
	key := endpointKey(ep)

	if _, exists := r.endpoints[key]; exists {
		return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
	}

	r.endpoints[key] = ep
	return nil
}

// Extend registers additional endpoints. Nothing is registered if any of them
// conflicts with an existing endpoint or with another one in the batch.
func (r *EndpointRegistry) Extend(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		key := endpointKey(ep)

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if seen[key] {
			return fmt.Errorf("duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		r.endpoints[endpointKey(&endpoints[i])] = &endpoints[i]
	}
	return nil
}

// Endpoints returns every registered endpoint ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}

// Lookup returns the endpoint registered for method and path.
func (r *EndpointRegistry) Lookup(method, path string) (*core.Endpoint, bool) {
	ep, ok := r.endpoints[method+":"+path]
	return ep, ok
}

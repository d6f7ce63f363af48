package login

import (
	"github.com/davidmonro/fence/internal/auth/resolver"
)

// SessionValues is the flow-session handle the core reads and writes.
// *session.Flow satisfies it.
type SessionValues interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// RequestContext carries per-request state through the login sequence in
// place of request globals. The core fills User and Audit.
type RequestContext struct {
	Session SessionValues
	Cookies map[string]string

	User  *resolver.User
	Audit *AuditContext
}

// LoginRequest captures one inbound "start login".
type LoginRequest struct {
	IdPName  string
	Redirect string
	// Mock is filled in by Start once the mock decision is made.
	Mock bool
}

// AuthParams are the anti-forgery values bound into the authorization URL.
type AuthParams struct {
	State         string
	CodeChallenge string
}

type ResponseKind int

const (
	ResponseRedirect ResponseKind = iota + 1
	ResponseJSON
)

// Response is what the HTTP layer should emit.
type Response struct {
	Kind     ResponseKind
	Location string
	Body     map[string]any
}

func Redirect(location string) Response {
	return Response{Kind: ResponseRedirect, Location: location}
}

func JSON(body map[string]any) Response {
	return Response{Kind: ResponseJSON, Body: body}
}

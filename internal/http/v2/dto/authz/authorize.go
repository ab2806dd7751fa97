// Package authz contiene los DTOs del endpoint de autorización.
package authz

// AuthorizeRequest es el body de POST /v2/authorize.
type AuthorizeRequest struct {
	Token    string            `json:"token"`    // "Bearer <jwt>" o el jwt solo
	Metadata map[string]string `json:"metadata"` // datos del llamador, se devuelven en context
	Resource string            `json:"resource"` // recurso a autorizar ("*" si vacío)
}

// AuthorizeResponse es la decisión "allow".
type AuthorizeResponse struct {
	PrincipalID    string         `json:"principalId"`
	PolicyDocument PolicyDocument `json:"policyDocument"`
	Context        map[string]any `json:"context"`
}

type PolicyDocument struct {
	Version   string      `json:"Version"`
	Statement []Statement `json:"Statement"`
}

type Statement struct {
	Action   string `json:"Action"`
	Effect   string `json:"Effect"`
	Resource string `json:"Resource"`
}

const (
	PolicyVersion = "2012-10-17"
	ActionInvoke  = "execute-api:Invoke"
	EffectAllow   = "Allow"
)

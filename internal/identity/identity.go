package identity

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/bookstore/internal/domain"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func (p Principal) IsCustomer() bool {
	return p.Role == RoleCustomer
}

// Owns reports whether the principal is the customer owning a record.
func (p Principal) Owns(customerID string) bool {
	return p.IsCustomer() && p.UserID == customerID
}

// Provider resolves the caller of an incoming request.
type Provider interface {
	Authenticate(r *http.Request) (Principal, error)
}

// HeaderProvider trusts identity headers set by the gateway in front of the service.
type HeaderProvider struct{}

func (HeaderProvider) Authenticate(r *http.Request) (Principal, error) {
	userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if userID == "" {
		return Principal{}, domain.ErrUnauthorized
	}

	role := Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))))
	switch role {
	case "":
		role = RoleCustomer
	case RoleCustomer, RoleAdmin:
	default:
		return Principal{}, domain.ErrUnauthorized
	}

	return Principal{UserID: userID, Role: role}, nil
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

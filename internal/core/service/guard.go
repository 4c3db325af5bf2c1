package service

import (
	"strings"

	"github.com/servimarket/portal/internal/core/domain"
)

const (
	LoginPath      = "/login"
	HomePath       = "/"
	OnboardingPath = "/profilVendor"
)

// DecisionKind is the outcome class of a guard evaluation.
type DecisionKind int

const (
	// NoDecision means the session is still loading and nothing should render.
	NoDecision DecisionKind = iota
	Allow
	Redirect
)

func (k DecisionKind) String() string {
	switch k {
	case NoDecision:
		return "none"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

// Decision is the result of evaluating the route guard. From is set on
// redirects to the login page and records the requested path with its query.
type Decision struct {
	Kind   DecisionKind
	Target string
	From   string
}

// GuardInput is everything the guard looks at. AllowedRoles may be empty,
// meaning any authenticated principal.
type GuardInput struct {
	Identity     *domain.Identity
	Loading      bool
	Path         string
	RawQuery     string
	AllowedRoles []domain.Role
}

// Evaluate decides whether the requested path may render. The rules apply in
// strict order and the first match wins:
//
//  1. loading → no decision
//  2. no identity → login, remembering the path
//  3. vendor with an incomplete profile → onboarding (unless already there)
//  4. role not allowed → home
//  5. allow
func Evaluate(in GuardInput) Decision {
	if in.Loading {
		return Decision{Kind: NoDecision}
	}
	if in.Identity == nil {
		return Decision{Kind: Redirect, Target: LoginPath, From: origin(in.Path, in.RawQuery)}
	}
	if in.Identity.NeedsOnboarding() && !isOnboardingPath(in.Path) {
		return Decision{Kind: Redirect, Target: OnboardingPath}
	}
	if len(in.AllowedRoles) > 0 && !hasRole(in.AllowedRoles, in.Identity.Role) {
		return Decision{Kind: Redirect, Target: HomePath}
	}
	return Decision{Kind: Allow}
}

func origin(path, rawQuery string) string {
	if rawQuery == "" {
		return path
	}
	return path + "?" + rawQuery
}

func isOnboardingPath(path string) bool {
	return path == OnboardingPath || strings.HasPrefix(path, OnboardingPath+"/")
}

func hasRole(allowed []domain.Role, role domain.Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

// RouteTable lists the protected portal views and the roles allowed on each.
var RouteTable = map[string][]domain.Role{
	"/dashClient":  {domain.RoleClient},
	"/dashVendor":  {domain.RoleVendor},
	"/dashAdmin":   {domain.RoleAdmin},
	OnboardingPath: {domain.RoleVendor},
	"/messages":    {domain.RoleClient, domain.RoleVendor},
	"/bookings":    {domain.RoleClient, domain.RoleVendor},
}

// Dashboard returns the default landing view of a role.
func Dashboard(role domain.Role) string {
	switch role {
	case domain.RoleClient:
		return "/dashClient"
	case domain.RoleVendor:
		return "/dashVendor"
	case domain.RoleAdmin:
		return "/dashAdmin"
	}
	return HomePath
}

// LandingPath picks where to send a principal right after login. from is the
// path recorded by a previous login redirect and is honoured only when the
// guard would allow it.
func LandingPath(id *domain.Identity, from string) string {
	if id == nil {
		return LoginPath
	}
	if id.NeedsOnboarding() {
		return OnboardingPath
	}
	path, _, _ := strings.Cut(from, "?")
	if roles, ok := RouteTable[path]; ok {
		d := Evaluate(GuardInput{Identity: id, Path: path, AllowedRoles: roles})
		if d.Kind == Allow {
			return from
		}
	}
	return Dashboard(id.Role)
}

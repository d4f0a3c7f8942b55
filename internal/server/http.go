package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"go.pilab.hu/accord/domain"
	aerrors "go.pilab.hu/accord/errors"
	"go.pilab.hu/accord/services"
)

// subjectTokenHeader carries the token id under inspection, separate from
// any credential the caller authenticates with. Token ids can be large and
// contain characters unfit for a path segment.
const subjectTokenHeader = "X-Subject-Token"

// authTokenHeader carries the caller's own token for guarded endpoints.
const authTokenHeader = "X-Auth-Token"

// AdminAction is the policy action guarding destructive registry endpoints.
const AdminAction = "identity:admin"

// Server binds the service layer to the HTTP API.
type Server struct {
	registry    *services.RegistryService
	assignments *services.AssignmentService
	tokens      *services.TokenService
	trusts      *services.TrustService
	auth        *services.AuthService
	policy      services.PolicyEngine // nil disables endpoint guards
}

func New(
	registry *services.RegistryService,
	assignments *services.AssignmentService,
	tokens *services.TokenService,
	trusts *services.TrustService,
	auth *services.AuthService,
	policy services.PolicyEngine,
) *Server {
	return &Server{
		registry:    registry,
		assignments: assignments,
		tokens:      tokens,
		trusts:      trusts,
		auth:        auth,
		policy:      policy,
	}
}

// requireAction validates the caller's X-Auth-Token and checks its role
// snapshot against the policy engine. With no engine configured every
// request passes, which suits single-tenant and test deployments.
func (s *Server) requireAction(action string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if s.policy == nil {
				return next(c)
			}
			id := c.Request().Header.Get(authTokenHeader)
			if id == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing "+authTokenHeader+" header")
			}
			token, err := s.tokens.ValidateToken(c.Request().Context(), id, "")
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if !s.policy.Allowed(token.Roles, action) {
				return echo.NewHTTPError(http.StatusForbidden, "action not permitted")
			}
			return next(c)
		}
	}
}

// RegisterRoutes attaches the v1 API to the echo instance.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	v1 := e.Group("/v1")

	admin := s.requireAction(AdminAction)

	v1.POST("/domains", s.createDomain, admin)
	v1.GET("/domains/:id", s.getDomain)
	v1.PATCH("/domains/:id", s.updateDomain, admin)
	v1.DELETE("/domains/:id", s.deleteDomain, admin)

	v1.POST("/projects", s.createProject)
	v1.GET("/projects/:id", s.getProject)
	v1.PATCH("/projects/:id", s.updateProject)
	v1.DELETE("/projects/:id", s.deleteProject)

	v1.POST("/users", s.createUser)
	v1.GET("/users/:id", s.getUser)
	v1.PATCH("/users/:id", s.updateUser)
	v1.DELETE("/users/:id", s.deleteUser)
	v1.POST("/users/:id/password", s.changePassword)
	v1.GET("/users/:id/projects", s.listUserProjects)
	v1.GET("/users/:id/projects/:project_id/roles", s.effectiveProjectRoles)
	v1.GET("/users/:id/domains/:domain_id/roles", s.effectiveDomainRoles)

	v1.POST("/groups", s.createGroup)
	v1.GET("/groups/:id", s.getGroup)
	v1.DELETE("/groups/:id", s.deleteGroup)
	v1.PUT("/groups/:id/members/:user_id", s.addGroupMember)
	v1.DELETE("/groups/:id/members/:user_id", s.removeGroupMember)

	v1.POST("/roles", s.createRole)
	v1.GET("/roles", s.listRoles)
	v1.GET("/roles/:id", s.getRole)
	v1.DELETE("/roles/:id", s.deleteRole, admin)

	v1.PUT("/grants", s.createGrant, admin)
	v1.DELETE("/grants", s.deleteGrant, admin)
	v1.POST("/grants/list", s.listGrants)

	v1.POST("/auth/tokens", s.issueToken)
	v1.GET("/auth/tokens", s.validateToken)
	v1.DELETE("/auth/tokens", s.revokeToken)
	v1.GET("/revocation-events", s.listRevocationEvents)

	v1.POST("/trusts", s.createTrust)
	v1.GET("/trusts", s.listTrusts)
	v1.GET("/trusts/:id", s.getTrust)
	v1.DELETE("/trusts/:id", s.deleteTrust)
	v1.POST("/trusts/:id/tokens", s.issueTrustToken)
}

// --- Domains ---

type createDomainRequest struct {
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
}

func (s *Server) createDomain(c echo.Context) error {
	var req createDomainRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	enabled := req.Enabled == nil || *req.Enabled
	d, err := s.registry.CreateDomain(c.Request().Context(), req.Name, enabled)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (s *Server) getDomain(c echo.Context) error {
	d, err := s.registry.GetDomain(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, d)
}

type updateDomainRequest struct {
	Name    *string `json:"name"`
	Enabled *bool   `json:"enabled"`
}

func (s *Server) updateDomain(c echo.Context) error {
	var req updateDomainRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	d, err := s.registry.UpdateDomain(c.Request().Context(), c.Param("id"),
		services.DomainUpdate{Name: req.Name, Enabled: req.Enabled})
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (s *Server) deleteDomain(c echo.Context) error {
	if err := s.registry.DeleteDomain(c.Request().Context(), c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Projects ---

type createProjectRequest struct {
	DomainID string         `json:"domain_id"`
	Name     string         `json:"name"`
	Extra    map[string]any `json:"extra"`
}

func (s *Server) createProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	p, err := s.registry.CreateProject(c.Request().Context(), req.DomainID, req.Name, req.Extra)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) getProject(c echo.Context) error {
	p, err := s.registry.GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type updateProjectRequest struct {
	Name     *string        `json:"name"`
	DomainID *string        `json:"domain_id"`
	Enabled  *bool          `json:"enabled"`
	Extra    map[string]any `json:"extra"`
}

func (s *Server) updateProject(c echo.Context) error {
	var req updateProjectRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	p, err := s.registry.UpdateProject(c.Request().Context(), c.Param("id"), services.ProjectUpdate{
		Name:     req.Name,
		DomainID: req.DomainID,
		Enabled:  req.Enabled,
		Extra:    req.Extra,
	})
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) deleteProject(c echo.Context) error {
	if err := s.registry.DeleteProject(c.Request().Context(), c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Users ---

type createUserRequest struct {
	DomainID string         `json:"domain_id"`
	Name     string         `json:"name"`
	Password string         `json:"password"`
	Extra    map[string]any `json:"extra"`
}

func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	u, err := s.registry.CreateUser(c.Request().Context(), req.DomainID, req.Name, req.Password, req.Extra)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (s *Server) getUser(c echo.Context) error {
	u, err := s.registry.GetUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, u)
}

type updateUserRequest struct {
	Name    *string        `json:"name"`
	Enabled *bool          `json:"enabled"`
	Extra   map[string]any `json:"extra"`
}

func (s *Server) updateUser(c echo.Context) error {
	var req updateUserRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	u, err := s.registry.UpdateUser(c.Request().Context(), c.Param("id"), services.UserUpdate{
		Name:    req.Name,
		Enabled: req.Enabled,
		Extra:   req.Extra,
	})
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) deleteUser(c echo.Context) error {
	if err := s.registry.DeleteUser(c.Request().Context(), c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (s *Server) changePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	err := s.auth.ChangePassword(c.Request().Context(), c.Param("id"), req.OldPassword, req.NewPassword)
	if err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listUserProjects(c echo.Context) error {
	projects, err := s.assignments.ProjectsForUser(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) effectiveProjectRoles(c echo.Context) error {
	roles, err := s.assignments.EffectiveRolesOnProject(c.Request().Context(),
		c.Param("id"), c.Param("project_id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"roles": roles})
}

func (s *Server) effectiveDomainRoles(c echo.Context) error {
	roles, err := s.assignments.EffectiveRolesOnDomain(c.Request().Context(),
		c.Param("id"), c.Param("domain_id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"roles": roles})
}

// --- Groups ---

type createGroupRequest struct {
	DomainID string `json:"domain_id"`
	Name     string `json:"name"`
}

func (s *Server) createGroup(c echo.Context) error {
	var req createGroupRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	g, err := s.registry.CreateGroup(c.Request().Context(), req.DomainID, req.Name)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, g)
}

func (s *Server) getGroup(c echo.Context) error {
	g, err := s.registry.GetGroup(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) deleteGroup(c echo.Context) error {
	if err := s.registry.DeleteGroup(c.Request().Context(), c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) addGroupMember(c echo.Context) error {
	err := s.registry.AddGroupMember(c.Request().Context(), c.Param("id"), c.Param("user_id"))
	if err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) removeGroupMember(c echo.Context) error {
	err := s.registry.RemoveGroupMember(c.Request().Context(), c.Param("id"), c.Param("user_id"))
	if err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Roles ---

type createRoleRequest struct {
	Name string `json:"name"`
}

func (s *Server) createRole(c echo.Context) error {
	var req createRoleRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	r, err := s.registry.CreateRole(c.Request().Context(), req.Name)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (s *Server) listRoles(c echo.Context) error {
	roles, err := s.registry.ListRoles(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"roles": roles})
}

func (s *Server) getRole(c echo.Context) error {
	r, err := s.registry.GetRole(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) deleteRole(c echo.Context) error {
	if err := s.registry.DeleteRole(c.Request().Context(), c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- Grants ---

type grantRequest struct {
	RoleID    string        `json:"role_id"`
	Actor     domain.Actor  `json:"actor"`
	Target    domain.Target `json:"target"`
	Inherited bool          `json:"inherited"`
}

func (s *Server) createGrant(c echo.Context) error {
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	err := s.assignments.CreateGrant(c.Request().Context(),
		req.RoleID, req.Actor, req.Target, req.Inherited)
	if err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) deleteGrant(c echo.Context) error {
	var req grantRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	err := s.assignments.DeleteGrant(c.Request().Context(), req.RoleID, req.Actor, req.Target)
	if err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type listGrantsRequest struct {
	Actor  domain.Actor  `json:"actor"`
	Target domain.Target `json:"target"`
}

func (s *Server) listGrants(c echo.Context) error {
	var req listGrantsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	roles, err := s.assignments.ListGrants(c.Request().Context(), req.Actor, req.Target)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"roles": roles})
}

// --- Tokens ---

type issueTokenRequest struct {
	UserID         string `json:"user_id"`
	DomainID       string `json:"domain_id"`
	UserName       string `json:"user_name"`
	Password       string `json:"password"`
	ScopeProjectID string `json:"scope_project_id"`
	ScopeDomainID  string `json:"scope_domain_id"`
}

func (s *Server) issueToken(c echo.Context) error {
	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	token, err := s.auth.Authenticate(c.Request().Context(), services.AuthRequest{
		UserID:         req.UserID,
		DomainID:       req.DomainID,
		UserName:       req.UserName,
		Password:       req.Password,
		ScopeProjectID: req.ScopeProjectID,
		ScopeDomainID:  req.ScopeDomainID,
	})
	if err != nil {
		return apiError(err)
	}
	c.Response().Header().Set(subjectTokenHeader, token.ID)
	return c.JSON(http.StatusCreated, token)
}

func (s *Server) validateToken(c echo.Context) error {
	id := c.Request().Header.Get(subjectTokenHeader)
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing "+subjectTokenHeader+" header")
	}
	token, err := s.tokens.ValidateToken(c.Request().Context(), id, c.QueryParam("belongs_to"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, token)
}

func (s *Server) revokeToken(c echo.Context) error {
	id := c.Request().Header.Get(subjectTokenHeader)
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing "+subjectTokenHeader+" header")
	}
	if err := s.tokens.DeleteToken(c.Request().Context(), id); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listRevocationEvents(c echo.Context) error {
	var since time.Time
	if raw := c.QueryParam("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be RFC 3339")
		}
		since = parsed
	}
	events, err := s.tokens.ListRevocationEvents(c.Request().Context(), since)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"events": events})
}

// --- Trusts ---

type createTrustRequest struct {
	TrustorUserID string     `json:"trustor_user_id"`
	TrusteeUserID string     `json:"trustee_user_id"`
	ProjectID     string     `json:"project_id"`
	Roles         []string   `json:"roles"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Impersonation bool       `json:"impersonation"`
	RemainingUses *int64     `json:"remaining_uses"`
}

func (s *Server) createTrust(c echo.Context) error {
	var req createTrustRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	t, err := s.trusts.CreateTrust(c.Request().Context(), services.CreateTrustOptions{
		TrustorUserID: req.TrustorUserID,
		TrusteeUserID: req.TrusteeUserID,
		ProjectID:     req.ProjectID,
		Roles:         req.Roles,
		ExpiresAt:     req.ExpiresAt,
		Impersonation: req.Impersonation,
		RemainingUses: req.RemainingUses,
	})
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) listTrusts(c echo.Context) error {
	ctx := c.Request().Context()
	if trustor := c.QueryParam("trustor_user_id"); trustor != "" {
		trusts, err := s.trusts.ListTrustsByTrustor(ctx, trustor)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(http.StatusOK, map[string]any{"trusts": trusts})
	}
	if trustee := c.QueryParam("trustee_user_id"); trustee != "" {
		trusts, err := s.trusts.ListTrustsByTrustee(ctx, trustee)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(http.StatusOK, map[string]any{"trusts": trusts})
	}
	return echo.NewHTTPError(http.StatusBadRequest,
		"either trustor_user_id or trustee_user_id is required")
}

func (s *Server) getTrust(c echo.Context) error {
	t, err := s.trusts.GetTrust(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) deleteTrust(c echo.Context) error {
	if err := s.trusts.DeleteTrust(c.Request().Context(), c.Param("id")); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type issueTrustTokenRequest struct {
	TrusteeUserID string `json:"trustee_user_id"`
	Password      string `json:"password"`
}

func (s *Server) issueTrustToken(c echo.Context) error {
	var req issueTrustTokenRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	token, err := s.trusts.IssueTokenFromTrust(c.Request().Context(),
		c.Param("id"), req.TrusteeUserID, req.Password)
	if err != nil {
		return apiError(err)
	}
	c.Response().Header().Set(subjectTokenHeader, token.ID)
	return c.JSON(http.StatusCreated, token)
}

// --- Error mapping ---

func badRequest(err error) error {
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

// apiError maps domain sentinels onto HTTP statuses. Anything unrecognized
// is a 500 with the detail withheld from the client.
func apiError(err error) error {
	switch {
	case errors.Is(err, aerrors.ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, aerrors.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, aerrors.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, aerrors.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, aerrors.ErrDomainNotFound),
		errors.Is(err, aerrors.ErrProjectNotFound),
		errors.Is(err, aerrors.ErrUserNotFound),
		errors.Is(err, aerrors.ErrGroupNotFound),
		errors.Is(err, aerrors.ErrRoleNotFound),
		errors.Is(err, aerrors.ErrTokenNotFound),
		errors.Is(err, aerrors.ErrTrustNotFound),
		errors.Is(err, aerrors.ErrGrantNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

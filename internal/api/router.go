package api

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	iauth "github.com/nodewire/nodewire/internal/auth"
	"github.com/nodewire/nodewire/internal/handlers"
	"github.com/nodewire/nodewire/internal/middleware"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/internal/services"
)

// Services bundles the service handles the router wires into handlers.
type Services struct {
	Auth          *iauth.AuthService
	Organizations *services.OrganizationService
	Nodes         *services.NodeService
	Connections   *services.NodeConnectionService
	Users         *services.UserService
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
func NewRouter(svcs Services) (*gin.Engine, error) {
	if svcs.Auth == nil {
		return nil, fmt.Errorf("auth service must be provided")
	}
	if svcs.Organizations == nil || svcs.Nodes == nil || svcs.Connections == nil || svcs.Users == nil {
		return nil, fmt.Errorf("all services must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.NoRoute(middleware.NotFoundHandler)

	// Public endpoints
	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(svcs.Auth)
	orgHandler := handlers.NewOrganizationHandler(svcs.Organizations)
	nodeHandler := handlers.NewNodeHandler(svcs.Nodes)
	connHandler := handlers.NewConnectionHandler(svcs.Connections)
	userHandler := handlers.NewUserHandler(svcs.Users)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", authHandler.Login)
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(svcs.Auth))

	api.GET("/auth/me", authHandler.Me)

	// Organizations. Ownership-scoped decisions happen in the service layer;
	// the route gate only proves the caller holds some applicable policy.
	orgs := api.Group("/organizations")
	{
		viewOrgs := middleware.RequirePolicy(policies.OrganizationsViewOwn, policies.OrganizationsViewAll)
		orgs.GET("/:id", viewOrgs, orgHandler.Get)
		orgs.GET("/:id/descendants", viewOrgs, orgHandler.ListDescendants)
		orgs.POST("", middleware.RequirePolicy(policies.OrganizationsManage), orgHandler.Create)

		manageNodes := middleware.RequirePolicy(policies.NodesManageOwn, policies.NodesManageAll)
		orgs.GET("/:id/nodes", manageNodes, nodeHandler.List)
		orgs.POST("/:id/nodes", manageNodes, nodeHandler.Create)

		manageUsers := middleware.RequirePolicy(policies.UsersManageOwn, policies.UsersManageAll)
		orgs.GET("/:id/users", manageUsers, userHandler.List)
		orgs.POST("/:id/users", manageUsers, userHandler.Create)
	}

	// Nodes
	manageNodes := middleware.RequirePolicy(policies.NodesManageOwn, policies.NodesManageAll)
	manageConns := middleware.RequirePolicy(policies.ConnectionsManageOwn, policies.ConnectionsManageAll)
	nodes := api.Group("/nodes")
	{
		nodes.GET("", middleware.RequirePolicy(policies.NodesManageAll), nodeHandler.ListAll)
		nodes.GET("/:id", manageNodes, nodeHandler.Get)
		nodes.PATCH("/:id", manageNodes, nodeHandler.Update)
		nodes.DELETE("/:id", manageNodes, nodeHandler.Delete)

		nodes.GET("/:id/invitations", manageConns, connHandler.ListInvitations)
		nodes.GET("/:id/connections", manageConns, connHandler.ListConnections)
	}

	// Connections
	conns := api.Group("/connections")
	conns.Use(manageConns)
	{
		conns.POST("/invitations", connHandler.CreateInvitation)
		conns.POST("/invitations/:id/accept", connHandler.AcceptInvitation)
		conns.POST("/invitations/:id/reject", connHandler.RejectInvitation)
		conns.DELETE("/:id", connHandler.RemoveConnection)
		conns.POST("/:id/rotate", connHandler.RotateCredentials)
		conns.GET("/:id/credentials", connHandler.GetCredentials)
	}

	// Users
	manageUsers := middleware.RequirePolicy(policies.UsersManageOwn, policies.UsersManageAll)
	users := api.Group("/users")
	{
		users.GET("/:id", manageUsers, userHandler.Get)
		users.PATCH("/:id/role", middleware.RequirePolicy(policies.UsersManageRoles), userHandler.UpdateRole)
		users.PATCH("/:id/status", manageUsers, userHandler.UpdateStatus)
	}

	return r, nil
}

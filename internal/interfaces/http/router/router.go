// Package router mounts handler route groups on the gin engine.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts its routes on a gin group
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts operator registrars under /api/v1 behind the API middleware
// and root registrars, such as webhook receivers, at /.
type Router struct {
	engine        *gin.Engine
	apiMiddleware []gin.HandlerFunc
	api           []RouteRegistrar
	root          []RouteRegistrar
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithAPIMiddleware adds middleware applied to /api/v1 only
func WithAPIMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.apiMiddleware = append(r.apiMiddleware, mw...)
	}
}

// NewRouter creates a Router on engine
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a registrar mounted under /api/v1
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.api = append(r.api, registrar)
	return r
}

// RegisterRoot adds a registrar mounted outside /api/v1, for callers that
// cannot send the admin token
func (r *Router) RegisterRoot(registrar RouteRegistrar) *Router {
	r.root = append(r.root, registrar)
	return r
}

// Setup mounts every registrar and returns the resulting route table
func (r *Router) Setup() gin.RoutesInfo {
	for _, registrar := range r.root {
		registrar.RegisterRoutes(&r.engine.RouterGroup)
	}
	api := r.engine.Group("/api/v1", r.apiMiddleware...)
	for _, registrar := range r.api {
		registrar.RegisterRoutes(api)
	}
	return r.engine.Routes()
}

// Group collects routes under a prefix before they are mounted
type Group struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
	subgroups  []*Group
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewGroup creates a route group under prefix
func NewGroup(prefix string) *Group {
	return &Group{prefix: prefix}
}

// Use adds middleware to the group and its subgroups
func (g *Group) Use(middleware ...gin.HandlerFunc) *Group {
	g.middleware = append(g.middleware, middleware...)
	return g
}

func (g *Group) handle(method, path string, handlers []gin.HandlerFunc) *Group {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

// GET registers a GET route
func (g *Group) GET(path string, handlers ...gin.HandlerFunc) *Group {
	return g.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (g *Group) POST(path string, handlers ...gin.HandlerFunc) *Group {
	return g.handle(http.MethodPost, path, handlers)
}

// PUT registers a PUT route
func (g *Group) PUT(path string, handlers ...gin.HandlerFunc) *Group {
	return g.handle(http.MethodPut, path, handlers)
}

// Group creates a subgroup under prefix
func (g *Group) Group(prefix string) *Group {
	sub := NewGroup(prefix)
	g.subgroups = append(g.subgroups, sub)
	return sub
}

// RegisterRoutes implements RouteRegistrar
func (g *Group) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(g.prefix, g.middleware...)
	for _, r := range g.routes {
		group.Handle(r.method, r.path, r.handlers...)
	}
	for _, sub := range g.subgroups {
		sub.RegisterRoutes(group)
	}
}

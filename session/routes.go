package session

// Route is a navigation target inside the portal.
type Route string

const (
	RouteRoot           Route = "/"
	RouteLogin          Route = "/login"
	RouteAdminLogin     Route = "/admin/login"
	RouteRegister       Route = "/register"
	RouteDashboard      Route = "/dashboard"
	RouteHistory        Route = "/history"
	RouteAdminDashboard Route = "/admin/dashboard"
)

// HomeRoute is the landing route for role. It is the only place that maps
// identity to a destination.
func HomeRoute(role Role) Route {
	if role.Elevated() {
		return RouteAdminDashboard
	}
	return RouteDashboard
}

// Navigator performs navigation intents.
type Navigator interface {
	Navigate(Route)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(Route)

func (f NavigatorFunc) Navigate(r Route) { f(r) }

type discardNavigator struct{}

func (discardNavigator) Navigate(Route) {}

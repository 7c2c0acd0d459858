package server

import "github.com/jrsteele09/campus-auth-client/authmodel"

// APIPrefix is where the API is mounted. Clients use it as the end of their base URL.
const APIPrefix = "/api"

// Route path constants
const (
	RouteAuthLogin    = APIPrefix + authmodel.PathLogin
	RouteAuthRefresh  = APIPrefix + authmodel.PathRefresh
	RouteAuthLogout   = APIPrefix + authmodel.PathLogout
	RouteAuthEnroll   = APIPrefix + authmodel.PathEnroll
	RouteAuthRegister = APIPrefix + authmodel.PathRegister
	RouteAuthProfile  = APIPrefix + authmodel.PathProfile
	RouteHealth       = APIPrefix + authmodel.PathHealth
)

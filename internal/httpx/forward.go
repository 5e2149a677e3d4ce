package httpx

// Route is how a request leaves the proxy. The chooser (ACL plus peer
// state) is out of scope; the machine only consumes its answer.
type Route int

const (
	// RouteDirect dials the origin named by the request.
	RouteDirect Route = iota
	// RouteParent dials a configured parent proxy, failing over through
	// the decision's ordered address list.
	RouteParent
	// RouteSibling dials the decision's sibling addresses in order; the
	// origin is dialed only when that list is empty.
	RouteSibling
	// RouteDeny refuses the request with an access-denied error page.
	RouteDeny
)

// ForwardDecision is the chooser's answer for one request.
type ForwardDecision struct {
	Route Route

	// Addrs is the ordered host:port failover list for RouteParent and
	// RouteSibling; empty for RouteDirect (the origin address is derived
	// from the request).
	Addrs []string
}

// ForwardChooser picks the forwarding path for a request.
type ForwardChooser func(*Request) ForwardDecision

// DirectChooser forwards everything straight to its origin.
func DirectChooser(*Request) ForwardDecision {
	return ForwardDecision{Route: RouteDirect}
}

package catalog

// Limits bounds a breadth-first walk over re-export edges, whether it
// crawls the registry or reads stored packages. Zero fields are unlimited.
//
// Depth counts edges from the starting package, which is at depth 0.
type Limits struct {
	MaxDepth    int `json:"max_depth,omitempty"`
	MaxPackages int `json:"max_packages,omitempty"`
}

// DepthAllowed reports whether a package reached at depth may be visited.
func (l Limits) DepthAllowed(depth int) bool {
	return l.MaxDepth <= 0 || depth <= l.MaxDepth
}

// Full reports whether n visited packages exhaust the size bound.
func (l Limits) Full(n int) bool {
	return l.MaxPackages > 0 && n >= l.MaxPackages
}

// Remaining returns how many packages may still be visited after n, or -1
// when there is no size bound.
func (l Limits) Remaining(n int) int {
	if l.MaxPackages <= 0 {
		return -1
	}
	return max(l.MaxPackages-n, 0)
}

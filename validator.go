package clusterstate

import "log/slog"

// osSupportedByStack reports whether the host's platform appears in the
// repository map of the cluster's desired stack. An empty or missing map
// means the stack supports no platforms; a metadata lookup failure is
// treated the same way, since mapping must never succeed on unverified
// compatibility.
func (r *Registry) osSupportedByStack(c *Cluster, h *Host) bool {
	stack := c.DesiredStack()
	repos, err := r.meta.Repositories(stack)
	if err != nil {
		slog.Warn("stack metadata lookup failed",
			"stack", stack.String(), "cluster", c.Name(), "error", err)
		return false
	}
	if len(repos) == 0 {
		return false
	}
	_, ok := repos[h.OSType()]
	return ok
}

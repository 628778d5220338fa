// Package clusterstate defines the narrow contract the database manager and
// lifecycle controller need from cluster membership: whether this node is
// in a cluster at all, and whether it is acting as a coordinator. The
// membership protocol itself is out of scope.
package clusterstate

import "sync/atomic"

// ClusterState is the consumed contract.
type ClusterState interface {
	IsRunningInCluster() bool
	IsCoordinator() bool
}

// Static is a ClusterState whose role is fixed at construction or flipped
// explicitly by a test or an out-of-scope membership watcher, without any
// consensus protocol of its own.
type Static struct {
	runningInCluster atomic.Bool
	coordinator      atomic.Bool
}

func NewSingleNode() *Static {
	return &Static{}
}

func NewCoordinator() *Static {
	s := &Static{}
	s.runningInCluster.Store(true)
	s.coordinator.Store(true)
	return s
}

func (s *Static) IsRunningInCluster() bool {
	return s.runningInCluster.Load()
}

func (s *Static) IsCoordinator() bool {
	return s.coordinator.Load()
}

// SetCoordinator allows a test, or a future membership watcher, to flip
// this node's role.
func (s *Static) SetCoordinator(v bool) {
	s.coordinator.Store(v)
	if v {
		s.runningInCluster.Store(true)
	}
}

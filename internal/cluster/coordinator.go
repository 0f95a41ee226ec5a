// Package cluster fans lifecycle operations out across the members of a
// named cluster. There is no cluster-level process: a cluster is "running"
// only in the sense that its members are.
package cluster

import (
	"fmt"

	"asactl/internal/domain"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MemberOps is the per-server surface the coordinator drives. Implemented by
// the process supervisor.
type MemberOps interface {
	Start(name string) error
	Stop(name string) error
	Restart(name string) error
	GetStatus(name string) (*domain.ServerStatus, error)
}

type Coordinator struct {
	store  domain.Repository
	ops    MemberOps
	logger zerolog.Logger
}

func NewCoordinator(logger zerolog.Logger, store domain.Repository, ops MemberOps) *Coordinator {
	return &Coordinator{
		store:  store,
		ops:    ops,
		logger: logger.With().Str("component", "cluster").Logger(),
	}
}

func (c *Coordinator) StartCluster(name string) ([]domain.MemberResult, error) {
	return c.fanOut(name, "start", c.ops.Start)
}

func (c *Coordinator) StopCluster(name string) ([]domain.MemberResult, error) {
	return c.fanOut(name, "stop", c.ops.Stop)
}

func (c *Coordinator) RestartCluster(name string) ([]domain.MemberResult, error) {
	return c.fanOut(name, "restart", c.ops.Restart)
}

// ClusterStatus queries every member in parallel. Unreachable members get an
// error entry; the rest report normally.
func (c *Coordinator) ClusterStatus(name string) ([]domain.ServerStatus, error) {
	members, err := c.members(name)
	if err != nil {
		return nil, err
	}

	statuses := make([]domain.ServerStatus, len(members))
	var g errgroup.Group
	for i := range members {
		g.Go(func() error {
			st, err := c.ops.GetStatus(members[i].Name)
			if err != nil {
				statuses[i] = domain.ServerStatus{Name: members[i].Name, Status: "unknown"}
				return nil
			}
			statuses[i] = *st
			return nil
		})
	}
	_ = g.Wait()

	return statuses, nil
}

// fanOut runs op against every member concurrently and collects a per-member
// outcome. Members have no defined relative ordering; all results are
// gathered before the aggregate returns.
func (c *Coordinator) fanOut(name, verb string, op func(string) error) ([]domain.MemberResult, error) {
	members, err := c.members(name)
	if err != nil {
		return nil, err
	}

	results := make([]domain.MemberResult, len(members))
	var g errgroup.Group
	for i := range members {
		g.Go(func() error {
			member := members[i].Name
			if err := op(member); err != nil {
				c.logger.Error().Err(err).Str("server", member).Str("op", verb).Msg("member operation failed")
				results[i] = domain.MemberResult{Name: member, Error: err.Error()}
				return nil
			}
			results[i] = domain.MemberResult{Name: member, Success: true}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (c *Coordinator) members(name string) ([]domain.ServerConfig, error) {
	cluster, err := c.store.GetClusterByName(name)
	if err != nil {
		return nil, err
	}
	if cluster == nil {
		return nil, fmt.Errorf("cluster %q not found", name)
	}

	members, err := c.store.ListClusterMembers(name)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("cluster %q has no members", name)
	}
	return members, nil
}

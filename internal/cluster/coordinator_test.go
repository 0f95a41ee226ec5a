package cluster

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"asactl/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	domain.Repository

	clusters map[string]*domain.ClusterConfig
	members  map[string][]domain.ServerConfig
}

func (r *fakeRepo) GetClusterByName(name string) (*domain.ClusterConfig, error) {
	return r.clusters[name], nil
}

func (r *fakeRepo) ListClusterMembers(clusterName string) ([]domain.ServerConfig, error) {
	return r.members[clusterName], nil
}

type fakeOps struct {
	mu      sync.Mutex
	started []string
	stopped []string
	failOn  string
}

func (o *fakeOps) Start(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if name == o.failOn {
		return errors.New("script missing")
	}
	o.started = append(o.started, name)
	return nil
}

func (o *fakeOps) Stop(name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if name == o.failOn {
		return errors.New("rcon unreachable")
	}
	o.stopped = append(o.stopped, name)
	return nil
}

func (o *fakeOps) Restart(name string) error {
	if err := o.Stop(name); err != nil {
		return err
	}
	return o.Start(name)
}

func (o *fakeOps) GetStatus(name string) (*domain.ServerStatus, error) {
	if name == o.failOn {
		return nil, errors.New("status query failed")
	}
	return &domain.ServerStatus{Name: name, Status: domain.StatusRunning, Players: 3}, nil
}

func threeMemberFixture() *fakeRepo {
	return &fakeRepo{
		clusters: map[string]*domain.ClusterConfig{
			"main": {Name: "main", BasePort: 7777},
		},
		members: map[string][]domain.ServerConfig{
			"main": {
				{Name: "main-01-theisland", GamePort: 7777},
				{Name: "main-02-scorchedearth", GamePort: 7778},
				{Name: "main-03-aberration", GamePort: 7779},
			},
		},
	}
}

func TestStartClusterAllSucceed(t *testing.T) {
	repo := threeMemberFixture()
	ops := &fakeOps{}
	c := NewCoordinator(zerolog.Nop(), repo, ops)

	results, err := c.StartCluster("main")
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, r.Name)
		assert.Empty(t, r.Error)
	}

	sort.Strings(ops.started)
	assert.Equal(t, []string{"main-01-theisland", "main-02-scorchedearth", "main-03-aberration"}, ops.started)
}

func TestStopClusterPartialFailure(t *testing.T) {
	repo := threeMemberFixture()
	ops := &fakeOps{failOn: "main-02-scorchedearth"}
	c := NewCoordinator(zerolog.Nop(), repo, ops)

	results, err := c.StopCluster("main")
	require.NoError(t, err)
	require.Len(t, results, 3)

	byName := make(map[string]domain.MemberResult)
	for _, r := range results {
		byName[r.Name] = r
	}

	assert.True(t, byName["main-01-theisland"].Success)
	assert.True(t, byName["main-03-aberration"].Success)
	assert.False(t, byName["main-02-scorchedearth"].Success)
	assert.Contains(t, byName["main-02-scorchedearth"].Error, "rcon unreachable")

	// The failure did not prevent the other members from being stopped.
	assert.Len(t, ops.stopped, 2)
}

func TestClusterNotFound(t *testing.T) {
	c := NewCoordinator(zerolog.Nop(), &fakeRepo{
		clusters: map[string]*domain.ClusterConfig{},
		members:  map[string][]domain.ServerConfig{},
	}, &fakeOps{})

	_, err := c.StartCluster("ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestClusterWithoutMembers(t *testing.T) {
	repo := threeMemberFixture()
	repo.members["main"] = nil
	c := NewCoordinator(zerolog.Nop(), repo, &fakeOps{})

	_, err := c.StopCluster("main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no members")
}

func TestClusterStatusDegradesPerMember(t *testing.T) {
	repo := threeMemberFixture()
	ops := &fakeOps{failOn: "main-03-aberration"}
	c := NewCoordinator(zerolog.Nop(), repo, ops)

	statuses, err := c.ClusterStatus("main")
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	byName := make(map[string]domain.ServerStatus)
	for _, s := range statuses {
		byName[s.Name] = s
	}

	assert.Equal(t, domain.StatusRunning, byName["main-01-theisland"].Status)
	assert.Equal(t, 3, byName["main-01-theisland"].Players)
	assert.Equal(t, "unknown", byName["main-03-aberration"].Status)
}

package domain

type ServerRepository interface {
	SaveServer(srv *ServerConfig) error
	UpdateServer(srv *ServerConfig) error
	ListServers() ([]ServerConfig, error)
	ListClusterMembers(clusterName string) ([]ServerConfig, error)
	GetServerByName(name string) (*ServerConfig, error)
	DeleteServer(name string) error
	UpdateStatus(name string, status string) error
	// ReservePorts validates the given port triples against every existing
	// server inside a single transaction and persists the new records only
	// when no collision exists. All-or-nothing.
	ReservePorts(servers []*ServerConfig) error
}

type ClusterRepository interface {
	SaveCluster(c *ClusterConfig) error
	GetClusterByName(name string) (*ClusterConfig, error)
	ListClusters() ([]ClusterConfig, error)
	DeleteCluster(name string) error
}

type PolicyRepository interface {
	GetPolicy(serverName string) (*AutoShutdownPolicy, error)
	SetPolicy(p *AutoShutdownPolicy) error
	ListPolicies() ([]AutoShutdownPolicy, error)
	DeletePolicy(serverName string) error
}

type SettingRepository interface {
	GetSetting(key string) (string, error)
	SetSetting(key string, value string) error
}

type Repository interface {
	ServerRepository
	ClusterRepository
	PolicyRepository
	SettingRepository
}

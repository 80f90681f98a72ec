// Package vmconfig holds the node's typed configuration, covering every
// key the external interface enumerates, with the teacher's
// NewOptions()-style defaults constructor.
package vmconfig

import "time"

// NetworkConfig groups every network.* configuration key.
type NetworkConfig struct {
	MaxConnections               int
	ConnectionInitialTimeoutMs    int
	RestrictedNATRetries          int
	MaxConnectionsPerIP6PrefixSize int

	RPC      RPCConfig
	DHT      DHTConfig
	Protocol ProtocolConfig
	TLS      TLSConfig
}

// RPCConfig is network.rpc.*.
type RPCConfig struct {
	Concurrency          int
	QueueSize            int
	TimeoutMs            int
	MaxRouteHopCount     int
	DefaultRouteHopCount int
}

// DHTConfig is network.dht.*.
type DHTConfig struct {
	GetValueCount      int
	GetValueFanout     int
	GetValueTimeoutMs  int
	SetValueCount      int
	SetValueFanout     int
	SetValueTimeoutMs  int
	MaxFindNodeCount   int
	MinPeerCount       int
}

// ProtocolEndpoint is one network.protocol.<proto>.* block.
type ProtocolEndpoint struct {
	Enabled       bool
	ListenAddress string
	PublicAddress string
	Path          string
	MaxConnections int
	Connect       bool
	Listen        bool
}

// ProtocolConfig groups every supported transport's endpoint settings.
type ProtocolConfig struct {
	UDP ProtocolEndpoint
	TCP ProtocolEndpoint
	WS  ProtocolEndpoint
	WSS ProtocolEndpoint
}

// TLSConfig is network.tls.*.
type TLSConfig struct {
	CertificatePath            string
	PrivateKeyPath              string
	ConnectionInitialTimeoutMs int
}

// Capabilities is capabilities.protocol_*.
type Capabilities struct {
	ProtocolUDP        bool
	ProtocolConnectTCP bool
	ProtocolAcceptTCP  bool
	ProtocolConnectWS  bool
	ProtocolAcceptWS   bool
	ProtocolConnectWSS bool
	ProtocolAcceptWSS  bool
}

// TableStoreConfig is table_store.*.
type TableStoreConfig struct {
	Directory string
	Delete    bool
}

// ProtectedStoreConfig is protected_store.*.
type ProtectedStoreConfig struct {
	AllowInsecureFallback      bool
	AlwaysUseInsecureStorage  bool
	InsecureFallbackDirectory string
	Delete                    bool
}

// Config is the complete typed configuration tree.
type Config struct {
	Network        NetworkConfig
	Capabilities   Capabilities
	TableStore     TableStoreConfig
	ProtectedStore ProtectedStoreConfig
}

// New returns a Config populated with the same conservative defaults the
// teacher's NewOptions() establishes: everything enabled that's safe to
// enable, short timeouts, no insecure fallback.
func New() *Config {
	return &Config{
		Network: NetworkConfig{
			MaxConnections:                 256,
			ConnectionInitialTimeoutMs:     int(5 * time.Second / time.Millisecond),
			RestrictedNATRetries:           3,
			MaxConnectionsPerIP6PrefixSize: 56,
			RPC: RPCConfig{
				Concurrency:          16,
				QueueSize:            1024,
				TimeoutMs:            10_000,
				MaxRouteHopCount:     7,
				DefaultRouteHopCount: 3,
			},
			DHT: DHTConfig{
				GetValueCount:     3,
				GetValueFanout:    4,
				GetValueTimeoutMs: 10_000,
				SetValueCount:     3,
				SetValueFanout:    4,
				SetValueTimeoutMs: 10_000,
				MaxFindNodeCount:  20,
				MinPeerCount:      3,
			},
			Protocol: ProtocolConfig{
				UDP: ProtocolEndpoint{Enabled: true, ListenAddress: ":0", Connect: true, Listen: true},
				TCP: ProtocolEndpoint{Enabled: true, ListenAddress: ":0", Connect: true, Listen: true},
				WS:  ProtocolEndpoint{Enabled: false, Path: "/ws"},
				WSS: ProtocolEndpoint{Enabled: false, Path: "/ws"},
			},
			TLS: TLSConfig{ConnectionInitialTimeoutMs: 5_000},
		},
		Capabilities: Capabilities{
			ProtocolUDP:        true,
			ProtocolConnectTCP: true,
			ProtocolAcceptTCP:  true,
		},
		TableStore: TableStoreConfig{
			Directory: "",
			Delete:    false,
		},
		ProtectedStore: ProtectedStoreConfig{
			AllowInsecureFallback:    false,
			AlwaysUseInsecureStorage: false,
		},
	}
}

package outline

type AccessKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Password  string     `json:"password,omitempty"`
	Port      int        `json:"port,omitempty"`
	Method    string     `json:"method,omitempty"`
	AccessURL string     `json:"accessUrl"`
	DataLimit *DataLimit `json:"dataLimit,omitempty"`
}

type DataLimit struct {
	Bytes int64 `json:"bytes"`
}

type ServerInfo struct {
	Name                  string `json:"name"`
	ServerID              string `json:"serverId"`
	MetricsEnabled        bool   `json:"metricsEnabled"`
	CreatedTimestampMs    int64  `json:"createdTimestampMs"`
	Version               string `json:"version"`
	PortForNewAccessKeys  int    `json:"portForNewAccessKeys"`
	HostnameForAccessKeys string `json:"hostnameForAccessKeys"`
}

// Metrics holds transferred bytes keyed by access key id.
type Metrics struct {
	BytesTransferredByUserID map[string]int64 `json:"bytesTransferredByUserId"`
}

// Total sums transferred bytes over all keys.
func (m Metrics) Total() int64 {
	var total int64
	for _, n := range m.BytesTransferredByUserID {
		total += n
	}
	return total
}

type listKeysResponse struct {
	AccessKeys []AccessKey `json:"accessKeys"`
}

type nameRequest struct {
	Name string `json:"name"`
}

type dataLimitRequest struct {
	Limit DataLimit `json:"limit"`
}

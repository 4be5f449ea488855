package models

import "time"

// NodeInfo contains metadata about the sensor node
type NodeInfo struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Driver    string    `json:"driver"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`
}

// Uptime returns the duration since the node started
func (n *NodeInfo) Uptime() time.Duration {
	return time.Since(n.StartTime)
}

// NewNodeInfo creates a new NodeInfo with the current time as start time
func NewNodeInfo(id, location, driver, version string) *NodeInfo {
	return &NodeInfo{
		ID:        id,
		Location:  location,
		Driver:    driver,
		Version:   version,
		StartTime: time.Now(),
	}
}

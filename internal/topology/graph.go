package topology

import "encoding/json"

// Node types carried in the children map of a raw site. Anything else
// (storage appliances, PDUs) is ignored by the indexer.
const (
	nodeTypeServer = "Server"
	nodeTypeSwitch = "Switch"
)

// interfaceTypeTrunk marks inter-site trunk interfaces on raw links.
const interfaceTypeTrunk = "TrunkPort"

// Graph is a decoded topology snapshot as served by the orchestrator.
type Graph struct {
	Sites      map[string]SiteNode     `json:"sites,omitempty"`
	Facilities map[string]FacilityNode `json:"facilities,omitempty"`
	Links      map[string]LinkNode     `json:"links,omitempty"`
}

// ParseGraph decodes one raw snapshot document.
func ParseGraph(raw []byte) (*Graph, error) {
	var g Graph
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// SiteNode is one raw site entry. The children map stays undecoded
// until the site loader runs so a malformed child section degrades only
// its own site, never the whole snapshot.
type SiteNode struct {
	Address  string          `json:"address,omitempty"`
	State    string          `json:"state,omitempty"`
	Location *LocationNode   `json:"location,omitempty"`
	Flags    *FlagsNode      `json:"flags,omitempty"`
	Children json.RawMessage `json:"children,omitempty"`
}

// ParseChildren decodes the site's children keyed by node id.
func (s SiteNode) ParseChildren() (map[string]ChildNode, error) {
	if len(s.Children) == 0 {
		return nil, nil
	}
	var children map[string]ChildNode
	if err := json.Unmarshal(s.Children, &children); err != nil {
		return nil, err
	}
	return children, nil
}

type LocationNode struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Postal string  `json:"postal,omitempty"`
}

type FlagsNode struct {
	Ptp            bool `json:"ptp"`
	IPv4Management bool `json:"ipv4_management"`
}

// ChildNode is one site child, a worker (Server) or a data-plane
// switch, with its capacity counters and component inventory.
type ChildNode struct {
	Type        string          `json:"type,omitempty"`
	Name        string          `json:"name,omitempty"`
	Model       string          `json:"model,omitempty"`
	Capacities  *CapacitiesNode `json:"capacities,omitempty"`
	Allocations *CapacitiesNode `json:"capacity_allocations,omitempty"`
	Components  []ComponentNode `json:"components,omitempty"`
}

type ComponentNode struct {
	Name        string          `json:"name,omitempty"`
	Model       string          `json:"model,omitempty"`
	Type        string          `json:"type,omitempty"`
	Capacities  *CapacitiesNode `json:"capacities,omitempty"`
	Allocations *CapacitiesNode `json:"capacity_allocations,omitempty"`
}

// CapacitiesNode carries the counter set used across sites, components
// and links. Unit counts devices, Bw is in Gbps.
type CapacitiesNode struct {
	Core int `json:"core,omitempty"`
	RAM  int `json:"ram,omitempty"`
	Disk int `json:"disk,omitempty"`
	Unit int `json:"unit,omitempty"`
	Bw   int `json:"bw,omitempty"`
}

// FacilityNode is one raw facility with its external interfaces.
type FacilityNode struct {
	Site       string          `json:"site,omitempty"`
	Interfaces []InterfaceNode `json:"interface_list,omitempty"`
}

// InterfaceNode is one raw interface, either on a facility or on a
// link's interface list.
type InterfaceNode struct {
	Name        string          `json:"name,omitempty"`
	Type        string          `json:"type,omitempty"`
	NodeID      string          `json:"node_id,omitempty"`
	Labels      *LabelsNode     `json:"labels,omitempty"`
	Allocations *LabelsNode     `json:"label_allocations,omitempty"`
	Capacities  *CapacitiesNode `json:"capacities,omitempty"`
	Peers       []PeerNode      `json:"peers,omitempty"`
}

// PeerNode is the far side of an interface connection. Name carries the
// peer's full port id.
type PeerNode struct {
	Name   string      `json:"name,omitempty"`
	NodeID string      `json:"node_id,omitempty"`
	Labels *LabelsNode `json:"labels,omitempty"`
}

type LabelsNode struct {
	LocalName  string   `json:"local_name,omitempty"`
	DeviceName string   `json:"device_name,omitempty"`
	Vlan       string   `json:"vlan,omitempty"`
	VlanRange  []string `json:"vlan_range,omitempty"`
}

// ToMap returns the set label fields as a plain map for record
// serialization, or nil when nothing is set.
func (l *LabelsNode) ToMap() map[string]any {
	if l == nil {
		return nil
	}
	m := make(map[string]any)
	if l.LocalName != "" {
		m["local_name"] = l.LocalName
	}
	if l.DeviceName != "" {
		m["device_name"] = l.DeviceName
	}
	if l.Vlan != "" {
		m["vlan"] = l.Vlan
	}
	if len(l.VlanRange) > 0 {
		vlans := make([]any, 0, len(l.VlanRange))
		for _, v := range l.VlanRange {
			vlans = append(vlans, v)
		}
		m["vlan_range"] = vlans
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// LinkNode is one raw link entry.
type LinkNode struct {
	Name        string          `json:"name,omitempty"`
	Layer       string          `json:"layer,omitempty"`
	Labels      map[string]any  `json:"labels,omitempty"`
	Capacities  *CapacitiesNode `json:"capacities,omitempty"`
	Allocations *CapacitiesNode `json:"capacity_allocations,omitempty"`
	Interfaces  []InterfaceNode `json:"interface_list,omitempty"`
}

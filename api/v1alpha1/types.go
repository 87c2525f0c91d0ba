package v1alpha1

import "sort"

// ComponentInfo describes one attachable device model on a host
// (GPU, SmartNIC, NVMe, FPGA) with its capacity counters.
type ComponentInfo struct {
	Model     string `json:"model"`
	Capacity  *int   `json:"capacity,omitempty"`
	Allocated *int   `json:"allocated,omitempty"`
}

// Available returns max(0, capacity-allocated), or nil when either
// counter is unknown.
func (c ComponentInfo) Available() *int {
	return available(c.Capacity, c.Allocated)
}

func (c ComponentInfo) ToMap() map[string]any {
	return map[string]any{
		"model":     c.Model,
		"capacity":  intOrNil(c.Capacity),
		"allocated": intOrNil(c.Allocated),
		"available": intOrNil(c.Available()),
	}
}

// SwitchInfo describes a site data-plane switch. Switches are keyed by
// name inside each site view.
type SwitchInfo struct {
	Model     string `json:"model,omitempty"`
	Capacity  *int   `json:"capacity,omitempty"`
	Allocated *int   `json:"allocated,omitempty"`
}

func (s SwitchInfo) Available() *int {
	return available(s.Capacity, s.Allocated)
}

func (s SwitchInfo) ToMap() map[string]any {
	return map[string]any{
		"model":     s.Model,
		"capacity":  intOrNil(s.Capacity),
		"allocated": intOrNil(s.Allocated),
		"available": intOrNil(s.Available()),
	}
}

// HostInfo describes one worker node of a site with its compute
// counters and per-model component inventory.
type HostInfo struct {
	Name string `json:"name"`
	Site string `json:"site"`

	CoresCapacity  *int `json:"cores_capacity,omitempty"`
	CoresAllocated *int `json:"cores_allocated,omitempty"`
	RAMCapacity    *int `json:"ram_capacity,omitempty"`
	RAMAllocated   *int `json:"ram_allocated,omitempty"`
	DiskCapacity   *int `json:"disk_capacity,omitempty"`
	DiskAllocated  *int `json:"disk_allocated,omitempty"`

	Components map[string]ComponentInfo `json:"components,omitempty"`
}

func (h HostInfo) ToMap() map[string]any {
	m := map[string]any{
		"name":            h.Name,
		"site":            h.Site,
		"cores_capacity":  intOrNil(h.CoresCapacity),
		"cores_allocated": intOrNil(h.CoresAllocated),
		"cores_available": intOrNil(available(h.CoresCapacity, h.CoresAllocated)),
		"ram_capacity":    intOrNil(h.RAMCapacity),
		"ram_allocated":   intOrNil(h.RAMAllocated),
		"ram_available":   intOrNil(available(h.RAMCapacity, h.RAMAllocated)),
		"disk_capacity":   intOrNil(h.DiskCapacity),
		"disk_allocated":  intOrNil(h.DiskAllocated),
		"disk_available":  intOrNil(available(h.DiskCapacity, h.DiskAllocated)),
	}
	if len(h.Components) > 0 {
		components := make(map[string]any, len(h.Components))
		for model, c := range h.Components {
			components[model] = map[string]any{
				"capacity":  intOrNil(c.Capacity),
				"allocated": intOrNil(c.Allocated),
				"available": intOrNil(c.Available()),
			}
		}
		m["components"] = components
	}
	return m
}

// FacilityPortInfo describes one external attachment point (a facility
// interface) with its VLAN labelling and switch mapping.
type FacilityPortInfo struct {
	Site           string         `json:"site"`
	Name           string         `json:"name"`
	Port           string         `json:"port,omitempty"`
	Switch         string         `json:"switch,omitempty"`
	Labels         map[string]any `json:"labels,omitempty"`
	Vlans          []string       `json:"vlans,omitempty"`
	AllocatedVlans []string       `json:"allocated_vlans,omitempty"`
}

func (f FacilityPortInfo) ToMap() map[string]any {
	m := map[string]any{
		"site":   f.Site,
		"name":   f.Name,
		"port":   f.Port,
		"switch": f.Switch,
	}
	if len(f.Labels) > 0 {
		m["labels"] = f.Labels
	}
	if f.Vlans != nil {
		m["vlans"] = stringsToAny(f.Vlans)
	}
	if f.AllocatedVlans != nil {
		m["allocated_vlans"] = stringsToAny(f.AllocatedVlans)
	}
	return m
}

// LinkEndpoint is one end of an inter-site link. Site and node stay nil
// when the raw endpoint id cannot be mapped back to a known site.
type LinkEndpoint struct {
	Site *string `json:"site"`
	Node *string `json:"node"`
	Port *string `json:"port"`
}

func (e LinkEndpoint) ToMap() map[string]any {
	return map[string]any{
		"site": strOrNil(e.Site),
		"node": strOrNil(e.Node),
		"port": strOrNil(e.Port),
	}
}

// LinkInfo describes one L1/L2 link between interfaces, possibly
// crossing sites.
type LinkInfo struct {
	Name               string         `json:"name"`
	Layer              string         `json:"layer,omitempty"`
	Labels             map[string]any `json:"labels,omitempty"`
	Bandwidth          *int           `json:"bandwidth,omitempty"`
	AllocatedBandwidth *int           `json:"allocated_bandwidth,omitempty"`
	Sites              []string       `json:"sites,omitempty"`
	Endpoints          []LinkEndpoint `json:"endpoints"`
}

func (l LinkInfo) ToMap() map[string]any {
	endpoints := make([]any, 0, len(l.Endpoints))
	for _, e := range l.Endpoints {
		endpoints = append(endpoints, e.ToMap())
	}
	m := map[string]any{
		"name":                l.Name,
		"layer":               l.Layer,
		"bandwidth":           intOrNil(l.Bandwidth),
		"allocated_bandwidth": intOrNil(l.AllocatedBandwidth),
		"endpoints":           endpoints,
	}
	if len(l.Labels) > 0 {
		m["labels"] = l.Labels
	}
	if l.Sites != nil {
		m["sites"] = stringsToAny(l.Sites)
	}
	return m
}

// Location is a site's geographic position.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// SiteInfo describes one testbed site. The topology indexer attaches
// per-site views over its host, switch, facility-port and link indices;
// views are shared by reference, never copied.
type SiteInfo struct {
	Name           string    `json:"name"`
	State          string    `json:"state,omitempty"`
	Address        string    `json:"address,omitempty"`
	Location       *Location `json:"location,omitempty"`
	PtpCapable     bool      `json:"ptp_capable"`
	IPv4Management bool      `json:"ipv4_management"`

	hosts         map[string]HostInfo
	switches      map[string]SwitchInfo
	facilityPorts []FacilityPortInfo
	links         []LinkInfo
}

// BindHosts attaches the host and switch views built by the indexer.
func (s *SiteInfo) BindHosts(hosts map[string]HostInfo, switches map[string]SwitchInfo) {
	s.hosts = hosts
	s.switches = switches
}

// BindFacilityPorts attaches the facility-port view built by the indexer.
func (s *SiteInfo) BindFacilityPorts(ports []FacilityPortInfo) {
	s.facilityPorts = ports
}

// BindLinks attaches the link view built by the indexer.
func (s *SiteInfo) BindLinks(links []LinkInfo) {
	s.links = links
}

// Hosts returns the site's host view. The view is empty until the
// indexer has bound it.
func (s *SiteInfo) Hosts() map[string]HostInfo { return s.hosts }

// Switches returns the site's switch view.
func (s *SiteInfo) Switches() map[string]SwitchInfo { return s.switches }

// FacilityPorts returns the facility ports attached at this site. Empty
// until the facility-port index has been built.
func (s *SiteInfo) FacilityPorts() []FacilityPortInfo { return s.facilityPorts }

// Links returns the links with at least one endpoint resolved to this
// site. Empty until the link index has been built.
func (s *SiteInfo) Links() []LinkInfo { return s.links }

// HostNames returns the site's host names sorted for stable output.
func (s *SiteInfo) HostNames() []string {
	names := make([]string, 0, len(s.hosts))
	for name := range s.hosts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AggregateCores sums core counters across the site's hosts, treating
// unknown counters as zero.
func (s *SiteInfo) AggregateCores() (capacity, allocated int) {
	for _, h := range s.hosts {
		capacity += intOrZero(h.CoresCapacity)
		allocated += intOrZero(h.CoresAllocated)
	}
	return capacity, allocated
}

// AggregateRAM sums RAM counters across the site's hosts.
func (s *SiteInfo) AggregateRAM() (capacity, allocated int) {
	for _, h := range s.hosts {
		capacity += intOrZero(h.RAMCapacity)
		allocated += intOrZero(h.RAMAllocated)
	}
	return capacity, allocated
}

// AggregateDisk sums disk counters across the site's hosts.
func (s *SiteInfo) AggregateDisk() (capacity, allocated int) {
	for _, h := range s.hosts {
		capacity += intOrZero(h.DiskCapacity)
		allocated += intOrZero(h.DiskAllocated)
	}
	return capacity, allocated
}

// AggregateComponents sums per-model component capacity and allocation
// across all hosts of the site.
func (s *SiteInfo) AggregateComponents() map[string]ComponentInfo {
	totals := make(map[string]ComponentInfo)
	for _, h := range s.hosts {
		for model, c := range h.Components {
			t, ok := totals[model]
			if !ok {
				t = ComponentInfo{Model: model, Capacity: new(int), Allocated: new(int)}
			}
			*t.Capacity += intOrZero(c.Capacity)
			*t.Allocated += intOrZero(c.Allocated)
			totals[model] = t
		}
	}
	return totals
}

func (s *SiteInfo) ToMap() map[string]any {
	coresCapacity, coresAllocated := s.AggregateCores()
	ramCapacity, ramAllocated := s.AggregateRAM()
	diskCapacity, diskAllocated := s.AggregateDisk()

	m := map[string]any{
		"name":            s.Name,
		"state":           s.State,
		"address":         s.Address,
		"ptp_capable":     s.PtpCapable,
		"ipv4_management": s.IPv4Management,
		"cores_capacity":  coresCapacity,
		"cores_allocated": coresAllocated,
		"cores_available": clampAvailable(coresCapacity, coresAllocated),
		"ram_capacity":    ramCapacity,
		"ram_allocated":   ramAllocated,
		"ram_available":   clampAvailable(ramCapacity, ramAllocated),
		"disk_capacity":   diskCapacity,
		"disk_allocated":  diskAllocated,
		"disk_available":  clampAvailable(diskCapacity, diskAllocated),
		"hosts":           stringsToAny(s.HostNames()),
	}
	if s.Location != nil {
		m["location"] = []any{s.Location.Lat, s.Location.Lon}
	}
	if components := s.AggregateComponents(); len(components) > 0 {
		cm := make(map[string]any, len(components))
		for model, c := range components {
			cm[model] = map[string]any{
				"capacity":  intOrNil(c.Capacity),
				"allocated": intOrNil(c.Allocated),
				"available": intOrNil(c.Available()),
			}
		}
		m["components"] = cm
	}
	return m
}

// available clamps capacity minus allocated at zero. It returns nil
// when either counter is unknown so callers can tell "unknown" from
// "exhausted".
func available(capacity, allocated *int) *int {
	if capacity == nil || allocated == nil {
		return nil
	}
	v := *capacity - *allocated
	if v < 0 {
		v = 0
	}
	return &v
}

func clampAvailable(capacity, allocated int) int {
	if v := capacity - allocated; v > 0 {
		return v
	}
	return 0
}

func intOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// intOrNil unwraps the pointer so serialized maps hold plain values and
// an untyped nil, never a typed nil pointer.
func intOrNil(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func strOrNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func stringsToAny(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}

package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
)

// ErrNoTopology is returned when a snapshot carries no structure at
// all. Anything less (a bad site, a dangling link) degrades in place
// instead.
var ErrNoTopology = errors.New("topology model is empty")

// FacilityPortKey identifies one facility interface. Ordinal is the
// interface position within the facility's interface list, which keeps
// same-named interfaces from clobbering each other.
type FacilityPortKey struct {
	Facility  string
	NodeID    string
	Interface string
	Ordinal   int
}

// nodeRef locates a site child for link endpoint resolution.
type nodeRef struct {
	site string
	node string
}

// ResourcesIndex turns one raw snapshot into query-ready record
// collections. Sites, hosts and switches are indexed eagerly; facility
// ports and links are built on first use and bound to their sites when
// built. An index instance is not safe for concurrent use; callers
// build one per snapshot.
type ResourcesIndex struct {
	graph *Graph

	sites    map[string]*api.SiteInfo
	hosts    map[string]map[string]api.HostInfo
	switches map[string]map[string]api.SwitchInfo
	nodes    map[string]nodeRef

	facilityPorts      map[FacilityPortKey]api.FacilityPortInfo
	facilityPortsBuilt bool

	links       []api.LinkInfo
	linksBySite map[string][]api.LinkInfo
	linksBuilt  bool
}

func NewResourcesIndex(g *Graph) (*ResourcesIndex, error) {
	if g == nil || (len(g.Sites) == 0 && len(g.Facilities) == 0 && len(g.Links) == 0) {
		return nil, ErrNoTopology
	}
	idx := &ResourcesIndex{
		graph:    g,
		sites:    make(map[string]*api.SiteInfo),
		hosts:    make(map[string]map[string]api.HostInfo),
		switches: make(map[string]map[string]api.SwitchInfo),
		nodes:    make(map[string]nodeRef),
	}
	idx.indexSites()
	return idx, nil
}

func (x *ResourcesIndex) indexSites() {
	for name, raw := range x.graph.Sites {
		x.indexNodes(name, raw)

		site, hosts, switches := loadSite(name, raw)
		if len(hosts) == 0 {
			// Facility-only and malformed entries carry nothing to
			// query; keeping them would only pad every site listing.
			zap.S().Named("topology").Debugf("dropping site %s: no hosts", name)
			continue
		}
		site.BindHosts(hosts, switches)
		x.sites[name] = site
		x.hosts[name] = hosts
		x.switches[name] = switches
	}
}

// indexNodes records every child id so link endpoints can be resolved
// back to their (site, node). Dropped sites still contribute entries;
// resolution follows the raw structure, not what ends up queryable.
func (x *ResourcesIndex) indexNodes(site string, raw SiteNode) {
	children, err := raw.ParseChildren()
	if err != nil {
		return
	}
	for id, child := range children {
		x.nodes[id] = nodeRef{site: site, node: childName(id, child)}
	}
}

// Sites returns the site index keyed by name.
func (x *ResourcesIndex) Sites() map[string]*api.SiteInfo { return x.sites }

func (x *ResourcesIndex) GetSite(name string) (*api.SiteInfo, bool) {
	site, ok := x.sites[name]
	return site, ok
}

// ListSites returns all indexed sites sorted by name.
func (x *ResourcesIndex) ListSites() []*api.SiteInfo {
	sites := make([]*api.SiteInfo, 0, len(x.sites))
	for _, site := range x.sites {
		sites = append(sites, site)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i].Name < sites[j].Name })
	return sites
}

// ListHosts returns hosts across all sites sorted by site then name.
func (x *ResourcesIndex) ListHosts() []api.HostInfo {
	var hosts []api.HostInfo
	for _, siteHosts := range x.hosts {
		for _, host := range siteHosts {
			hosts = append(hosts, host)
		}
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].Site != hosts[j].Site {
			return hosts[i].Site < hosts[j].Site
		}
		return hosts[i].Name < hosts[j].Name
	})
	return hosts
}

// FacilityPorts returns the facility-port index, building it on first
// use.
func (x *ResourcesIndex) FacilityPorts() map[FacilityPortKey]api.FacilityPortInfo {
	if !x.facilityPortsBuilt {
		x.buildFacilityPorts()
	}
	return x.facilityPorts
}

// ListFacilityPorts returns all facility ports sorted by site, facility
// and port.
func (x *ResourcesIndex) ListFacilityPorts() []api.FacilityPortInfo {
	index := x.FacilityPorts()
	ports := make([]api.FacilityPortInfo, 0, len(index))
	for _, port := range index {
		ports = append(ports, port)
	}
	sortFacilityPorts(ports)
	return ports
}

func (x *ResourcesIndex) buildFacilityPorts() {
	x.facilityPorts = make(map[FacilityPortKey]api.FacilityPortInfo)
	perSite := make(map[string][]api.FacilityPortInfo)

	for facility, raw := range x.graph.Facilities {
		for ordinal, iface := range raw.Interfaces {
			port := loadFacilityPort(facility, raw.Site, iface)
			key := FacilityPortKey{
				Facility:  facility,
				NodeID:    iface.NodeID,
				Interface: iface.Name,
				Ordinal:   ordinal,
			}
			x.facilityPorts[key] = port
			perSite[raw.Site] = append(perSite[raw.Site], port)
		}
	}

	for name, ports := range perSite {
		site, ok := x.sites[name]
		if !ok {
			continue
		}
		sortFacilityPorts(ports)
		site.BindFacilityPorts(ports)
	}
	x.facilityPortsBuilt = true
}

func loadFacilityPort(facility, site string, iface InterfaceNode) api.FacilityPortInfo {
	port := api.FacilityPortInfo{
		Site:   site,
		Name:   facility,
		Labels: iface.Labels.ToMap(),
	}
	if labels := iface.Labels; labels != nil {
		port.Port = labels.LocalName
		port.Vlans = vlanRange(labels)
	}
	if allocated := iface.Allocations; allocated != nil {
		port.AllocatedVlans = vlanRange(allocated)
	}

	// Facility interfaces often carry no local name of their own; the
	// first connected peer names both the port and the switch side.
	if len(iface.Peers) > 0 {
		peer := iface.Peers[0]
		if port.Port == "" && peer.Labels != nil {
			port.Port = peer.Labels.LocalName
		}
		port.Switch = peer.Name
	}
	return port
}

// vlanRange normalizes VLAN labelling: an explicit range wins, a single
// VLAN is wrapped as a one-element range.
func vlanRange(labels *LabelsNode) []string {
	if len(labels.VlanRange) > 0 {
		return append([]string(nil), labels.VlanRange...)
	}
	if labels.Vlan != "" {
		return []string{labels.Vlan}
	}
	return nil
}

func sortFacilityPorts(ports []api.FacilityPortInfo) {
	sort.Slice(ports, func(i, j int) bool {
		if ports[i].Site != ports[j].Site {
			return ports[i].Site < ports[j].Site
		}
		if ports[i].Name != ports[j].Name {
			return ports[i].Name < ports[j].Name
		}
		return ports[i].Port < ports[j].Port
	})
}

// Links returns every raw link with endpoints resolved, building the
// index on first use. The slice covers the whole snapshot, including
// links whose endpoints resolved to no known site.
func (x *ResourcesIndex) Links() []api.LinkInfo {
	if !x.linksBuilt {
		x.buildLinks()
	}
	return x.links
}

// ListLinks returns the links deduplicated by identity, so a link
// advertised once per side is reported once. Sorted by name then
// identity for stable pagination.
func (x *ResourcesIndex) ListLinks() []api.LinkInfo {
	all := x.Links()
	seen := make(map[string]struct{}, len(all))
	links := make([]api.LinkInfo, 0, len(all))
	for _, link := range all {
		key := linkIdentity(link)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		links = append(links, link)
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Name != links[j].Name {
			return links[i].Name < links[j].Name
		}
		return linkIdentity(links[i]) < linkIdentity(links[j])
	})
	return links
}

func (x *ResourcesIndex) buildLinks() {
	x.links = make([]api.LinkInfo, 0, len(x.graph.Links))
	x.linksBySite = make(map[string][]api.LinkInfo)

	for id, raw := range x.graph.Links {
		link := x.loadLink(id, raw)
		x.links = append(x.links, link)

		for _, site := range linkSites(link) {
			if _, ok := x.sites[site]; ok {
				x.linksBySite[site] = append(x.linksBySite[site], link)
			}
		}
	}

	for name, bucket := range x.linksBySite {
		x.sites[name].BindLinks(bucket)
	}
	x.linksBuilt = true
}

func (x *ResourcesIndex) loadLink(id string, raw LinkNode) api.LinkInfo {
	name := raw.Name
	if name == "" {
		name = id
	}
	link := api.LinkInfo{
		Name:   name,
		Layer:  raw.Layer,
		Labels: raw.Labels,
	}
	if raw.Capacities != nil {
		link.Bandwidth = ptr(raw.Capacities.Bw)
	}
	if raw.Allocations != nil {
		link.AllocatedBandwidth = ptr(raw.Allocations.Bw)
	}

	resolved := false
	for _, iface := range raw.Interfaces {
		endpoint := api.LinkEndpoint{}
		if port := interfacePortName(iface); port != "" {
			endpoint.Port = &port
		}
		if site, node, ok := x.resolveEndpointSite(iface.NodeID); ok {
			endpoint.Site = &site
			endpoint.Node = &node
			resolved = true
		}
		link.Endpoints = append(link.Endpoints, endpoint)
	}

	if !resolved && len(raw.Interfaces) > 0 {
		link.Sites = sitesFromTrunkName(raw.Interfaces[0])
	}
	return link
}

// resolveEndpointSite maps a raw endpoint node id to its (site, node).
// The node-id table built from all sites' children is authoritative;
// trunk-name parsing is a separate best-effort fallback applied only
// when no endpoint of a link resolves.
func (x *ResourcesIndex) resolveEndpointSite(nodeID string) (string, string, bool) {
	ref, ok := x.nodes[nodeID]
	if !ok {
		return "", "", false
	}
	return ref.site, ref.node, true
}

func interfacePortName(iface InterfaceNode) string {
	if iface.Labels != nil && iface.Labels.LocalName != "" {
		return iface.Labels.LocalName
	}
	return iface.Name
}

// sitesFromTrunkName derives site codes from a trunk interface named
// like "RENC_STAR". Port-level names such as "HundredGigE0/0/0/5_..."
// encode a point-to-point port rather than a site pair and are
// excluded.
func sitesFromTrunkName(iface InterfaceNode) []string {
	if iface.Type != interfaceTypeTrunk {
		return nil
	}
	parts := strings.Split(iface.Name, "_")
	if len(parts) < 2 {
		return nil
	}
	if strings.Contains(parts[0], "HundredGig") {
		return nil
	}
	return parts
}

// linkSites unions the resolved endpoint sites with any trunk-derived
// names, keeping first-seen order.
func linkSites(link api.LinkInfo) []string {
	seen := make(map[string]struct{})
	var sites []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		sites = append(sites, name)
	}
	for _, endpoint := range link.Endpoints {
		if endpoint.Site != nil {
			add(*endpoint.Site)
		}
	}
	for _, name := range link.Sites {
		add(name)
	}
	return sites
}

// linkIdentity builds the dedup key from the link name and its sorted
// endpoint (site, node, port) triples.
func linkIdentity(link api.LinkInfo) string {
	triples := make([]string, 0, len(link.Endpoints))
	for _, e := range link.Endpoints {
		triples = append(triples, fmt.Sprintf("%s/%s/%s", orEmpty(e.Site), orEmpty(e.Node), orEmpty(e.Port)))
	}
	sort.Strings(triples)
	return link.Name + "|" + strings.Join(triples, "|")
}

func orEmpty(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

package topology

import (
	"go.uber.org/zap"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
)

// stateError marks a site whose raw entry could not be decoded. The
// site is still reported so operators can see that something is wrong
// with the advertisement.
const stateError = "Error"

// loadSite builds the site record plus its host and switch maps from
// one raw site entry. A site whose children cannot be decoded comes
// back in state Error with empty maps; the caller keeps indexing the
// rest of the snapshot.
func loadSite(name string, raw SiteNode) (*api.SiteInfo, map[string]api.HostInfo, map[string]api.SwitchInfo) {
	site := &api.SiteInfo{
		Name:    name,
		State:   raw.State,
		Address: raw.Address,
	}
	if raw.Location != nil {
		site.Location = &api.Location{Lat: raw.Location.Lat, Lon: raw.Location.Lon}
	}
	if raw.Flags != nil {
		site.PtpCapable = raw.Flags.Ptp
		site.IPv4Management = raw.Flags.IPv4Management
	}

	hosts := make(map[string]api.HostInfo)
	switches := make(map[string]api.SwitchInfo)

	children, err := raw.ParseChildren()
	if err != nil {
		zap.S().Named("topology").Warnf("failed to decode children of site %s: %v", name, err)
		site.State = stateError
		return site, hosts, switches
	}

	for id, child := range children {
		switch child.Type {
		case nodeTypeServer:
			host := loadHost(name, id, child)
			hosts[host.Name] = host
		case nodeTypeSwitch:
			switches[childName(id, child)] = api.SwitchInfo{
				Model:     child.Model,
				Capacity:  unitCount(child.Capacities),
				Allocated: unitCount(child.Allocations),
			}
		}
	}
	return site, hosts, switches
}

func loadHost(site, id string, child ChildNode) api.HostInfo {
	host := api.HostInfo{
		Name: childName(id, child),
		Site: site,
	}
	host.CoresCapacity, host.RAMCapacity, host.DiskCapacity = counters(child.Capacities)
	host.CoresAllocated, host.RAMAllocated, host.DiskAllocated = counters(child.Allocations)

	if len(child.Components) > 0 {
		host.Components = loadComponents(child.Components)
	}
	return host
}

// loadComponents folds the component list into a per-model map. Hosts
// advertise one entry per physical device, so same-model entries merge
// by summing their unit counts.
func loadComponents(nodes []ComponentNode) map[string]api.ComponentInfo {
	components := make(map[string]api.ComponentInfo, len(nodes))
	for _, node := range nodes {
		model := node.Model
		if model == "" {
			model = node.Name
		}
		if model == "" {
			continue
		}
		entry, ok := components[model]
		if !ok {
			entry = api.ComponentInfo{Model: model}
		}
		entry.Capacity = addUnits(entry.Capacity, node.Capacities)
		entry.Allocated = addUnits(entry.Allocated, node.Allocations)
		components[model] = entry
	}
	return components
}

func childName(id string, child ChildNode) string {
	if child.Name != "" {
		return child.Name
	}
	return id
}

// counters reads a capacity substructure defensively. A missing
// substructure counts as zero rather than aborting the site.
func counters(c *CapacitiesNode) (cores, ram, disk *int) {
	var v CapacitiesNode
	if c != nil {
		v = *c
	}
	return ptr(v.Core), ptr(v.RAM), ptr(v.Disk)
}

// addUnits accumulates a component's unit count. The total stays
// unknown until at least one counter has been seen.
func addUnits(total *int, c *CapacitiesNode) *int {
	if c == nil {
		return total
	}
	v := c.Unit
	if total != nil {
		v += *total
	}
	return &v
}

func unitCount(c *CapacitiesNode) *int {
	if c == nil {
		return nil
	}
	return ptr(c.Unit)
}

func ptr(v int) *int { return &v }

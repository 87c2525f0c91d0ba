package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/meshbed/testbed-manager/internal/query"
	"github.com/meshbed/testbed-manager/internal/topology"
	"github.com/meshbed/testbed-manager/pkg/metrics"
)

// SnapshotProvider fetches the advertised topology model from the
// control framework.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, token string) (*topology.Graph, error)
}

// TokenResolver yields a valid identity token for upstream calls.
type TokenResolver interface {
	EnsureValidToken(ctx context.Context) (string, error)
}

// QueryOptions shapes one resource query. An explicit Token wins over
// the service's resolver; Filter may be nil.
type QueryOptions struct {
	Token  string
	Filter query.Filter
	Limit  *int
	Offset int
}

// TopologyService is the query façade: each call fetches one snapshot,
// builds one index over it, and filters the requested record kind.
// There is no cross-call cache; a rebuilt index is cheap and a stale
// snapshot of live resources is not.
type TopologyService struct {
	provider SnapshotProvider
	tokens   TokenResolver
}

// NewTopologyService builds the query façade. The token resolver may be
// nil when every call supplies its own token or the provider needs no
// authentication.
func NewTopologyService(provider SnapshotProvider, tokens TokenResolver) *TopologyService {
	return &TopologyService{
		provider: provider,
		tokens:   tokens,
	}
}

// QuerySites returns the site records matching the filter, paged.
func (s *TopologyService) QuerySites(ctx context.Context, opts QueryOptions) ([]query.Record, error) {
	index, err := s.buildIndex(ctx, opts.Token)
	if err != nil {
		return nil, err
	}
	sites := index.ListSites()
	records := make([]query.Record, 0, len(sites))
	for _, site := range sites {
		records = append(records, site.ToMap())
	}
	return pageRecords(records, opts), nil
}

// GetSite returns the record of one site by name.
func (s *TopologyService) GetSite(ctx context.Context, token, name string) (query.Record, error) {
	index, err := s.buildIndex(ctx, token)
	if err != nil {
		return nil, err
	}
	site, ok := index.GetSite(name)
	if !ok {
		return nil, NewErrSiteNotFound(name)
	}
	return site.ToMap(), nil
}

// QueryHosts returns the host records matching the filter, paged.
func (s *TopologyService) QueryHosts(ctx context.Context, opts QueryOptions) ([]query.Record, error) {
	index, err := s.buildIndex(ctx, opts.Token)
	if err != nil {
		return nil, err
	}
	hosts := index.ListHosts()
	records := make([]query.Record, 0, len(hosts))
	for _, host := range hosts {
		records = append(records, host.ToMap())
	}
	return pageRecords(records, opts), nil
}

// QueryFacilityPorts returns the facility port records matching the
// filter, paged.
func (s *TopologyService) QueryFacilityPorts(ctx context.Context, opts QueryOptions) ([]query.Record, error) {
	index, err := s.buildIndex(ctx, opts.Token)
	if err != nil {
		return nil, err
	}
	ports := index.ListFacilityPorts()
	records := make([]query.Record, 0, len(ports))
	for _, port := range ports {
		records = append(records, port.ToMap())
	}
	return pageRecords(records, opts), nil
}

// QueryLinks returns the deduplicated link records matching the filter,
// paged.
func (s *TopologyService) QueryLinks(ctx context.Context, opts QueryOptions) ([]query.Record, error) {
	index, err := s.buildIndex(ctx, opts.Token)
	if err != nil {
		return nil, err
	}
	links := index.ListLinks()
	records := make([]query.Record, 0, len(links))
	for _, link := range links {
		records = append(records, link.ToMap())
	}
	return pageRecords(records, opts), nil
}

// buildIndex fetches one snapshot and indexes it. A missing or
// structureless snapshot surfaces as ErrTopologyUnavailable, never as
// an empty result.
func (s *TopologyService) buildIndex(ctx context.Context, token string) (*topology.ResourcesIndex, error) {
	if token == "" && s.tokens != nil {
		t, err := s.tokens.EnsureValidToken(ctx)
		if err != nil {
			metrics.IncreaseSnapshotFetchesTotalMetric(metrics.FetchFailure)
			return nil, NewErrTopologyUnavailable(err)
		}
		token = t
	}

	graph, err := s.provider.Snapshot(ctx, token)
	if err != nil {
		metrics.IncreaseSnapshotFetchesTotalMetric(metrics.FetchFailure)
		return nil, NewErrTopologyUnavailable(err)
	}

	index, err := topology.NewResourcesIndex(graph)
	if err != nil {
		metrics.IncreaseSnapshotFetchesTotalMetric(metrics.FetchFailure)
		return nil, NewErrTopologyUnavailable(err)
	}
	metrics.IncreaseSnapshotFetchesTotalMetric(metrics.FetchSuccess)

	metrics.UpdateIndexedRecordsCountMetric("sites", len(index.Sites()))
	metrics.UpdateIndexedRecordsCountMetric("hosts", len(index.ListHosts()))
	metrics.UpdateIndexedRecordsCountMetric("facility_ports", len(index.FacilityPorts()))
	metrics.UpdateIndexedRecordsCountMetric("links", len(index.ListLinks()))

	zap.S().Named("topology").Debugf("indexed topology snapshot with %d sites", len(index.Sites()))

	return index, nil
}

func pageRecords(records []query.Record, opts QueryOptions) []query.Record {
	return query.Paginate(query.Apply(records, opts.Filter), opts.Limit, opts.Offset)
}

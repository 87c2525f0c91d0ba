package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/meshbed/testbed-manager/api/v1alpha1"
	"github.com/meshbed/testbed-manager/internal/topology"
)

const (
	// DefaultSnapshotLevel requests site detail down to hosts and
	// components, the level the topology index expects.
	DefaultSnapshotLevel = 2

	defaultGraphFormat = "JSON_NODELINK"
	defaultPageSize    = 20
)

// Orchestrator talks to the control framework's resource and slice
// endpoints.
type Orchestrator struct {
	r *requester
}

// NewOrchestrator builds an orchestrator client. Bare hosts are
// normalized to https://<host>/.
func NewOrchestrator(host string, opts ...Option) *Orchestrator {
	return &Orchestrator{r: newRequester("orchestrator", baseURL(host, ""), opts...)}
}

// ResourceOptions tunes a topology fetch. Level selects the
// advertisement detail, Includes and Excludes narrow it to named sites,
// StartDate and EndDate (TimeFormat) ask for availability over a
// window.
type ResourceOptions struct {
	Level        int
	ForceRefresh bool
	StartDate    string
	EndDate      string
	Includes     []string
	Excludes     []string
}

// Resources fetches the advertised topology model.
func (o *Orchestrator) Resources(ctx context.Context, token string, opts ResourceOptions) (*topology.Graph, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}
	for _, ts := range []string{opts.StartDate, opts.EndDate} {
		if ts == "" {
			continue
		}
		if _, err := time.Parse(TimeFormat, ts); err != nil {
			return nil, fmt.Errorf("date %q must use format %q: %w", ts, TimeFormat, err)
		}
	}

	level := opts.Level
	if level <= 0 {
		level = 1
	}
	params := url.Values{}
	params.Set("level", strconv.Itoa(level))
	params.Set("force_refresh", strconv.FormatBool(opts.ForceRefresh))
	if opts.StartDate != "" {
		params.Set("start_date", opts.StartDate)
	}
	if opts.EndDate != "" {
		params.Set("end_date", opts.EndDate)
	}
	if len(opts.Includes) > 0 {
		params.Set("includes", strings.Join(opts.Includes, ", "))
	}
	if len(opts.Excludes) > 0 {
		params.Set("excludes", strings.Join(opts.Excludes, ", "))
	}

	raw, err := o.r.do(ctx, request{
		method: http.MethodGet,
		path:   "resources",
		token:  token,
		params: params,
	})
	if err != nil {
		return nil, err
	}
	return decodeGraph(raw)
}

// Snapshot fetches the topology at full site detail, the level the
// query layer indexes.
func (o *Orchestrator) Snapshot(ctx context.Context, token string) (*topology.Graph, error) {
	return o.Resources(ctx, token, ResourceOptions{Level: DefaultSnapshotLevel})
}

// PortalResources fetches the public topology advertisement. No token
// required.
func (o *Orchestrator) PortalResources(ctx context.Context, graphFormat string) (*topology.Graph, error) {
	if graphFormat == "" {
		graphFormat = defaultGraphFormat
	}
	params := url.Values{}
	params.Set("graph_format", graphFormat)

	raw, err := o.r.do(ctx, request{
		method: http.MethodGet,
		path:   "portalresources",
		params: params,
	})
	if err != nil {
		return nil, err
	}
	return decodeGraph(raw)
}

// decodeGraph pulls the model document out of the reply envelope. The
// model may arrive as an embedded object or as a JSON-encoded string.
func decodeGraph(raw []byte) (*topology.Graph, error) {
	var env struct {
		Data []struct {
			Model json.RawMessage `json:"model"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response envelope: %w", err)
	}
	if len(env.Data) == 0 || len(env.Data[0].Model) == 0 {
		return nil, ErrEmptyResponse
	}
	model := env.Data[0].Model
	if model[0] == '"' {
		var doc string
		if err := json.Unmarshal(model, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode model document: %w", err)
		}
		model = []byte(doc)
	}
	return topology.ParseGraph(model)
}

// ListSlicesOptions narrows a slice listing. AllUsers widens it from
// the caller's own slices to every slice the project shows.
type ListSlicesOptions struct {
	States     []string
	Name       string
	Search     string
	ExactMatch bool
	AllUsers   bool
	Limit      int
	Offset     int
}

// Slices lists slices visible to the caller.
func (o *Orchestrator) Slices(ctx context.Context, token string, opts ListSlicesOptions) ([]api.Slice, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(opts.Offset))
	params.Set("as_self", strconv.FormatBool(!opts.AllUsers))
	if opts.Name != "" {
		params.Set("name", opts.Name)
		params.Set("exact_match", strconv.FormatBool(opts.ExactMatch))
	}
	if opts.Search != "" {
		params.Set("search", opts.Search)
	}
	for _, state := range opts.States {
		params.Add("states", state)
	}

	raw, err := o.r.do(ctx, request{
		method: http.MethodGet,
		path:   "slices",
		token:  token,
		params: params,
	})
	if err != nil {
		return nil, err
	}
	var slices []api.Slice
	if err := unmarshalData(raw, &slices); err != nil {
		return nil, err
	}
	return slices, nil
}

// GetSlice fetches one slice together with its graph model.
func (o *Orchestrator) GetSlice(ctx context.Context, token, sliceID string) (*api.Slice, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}
	if sliceID == "" {
		return nil, fmt.Errorf("slice id must be specified")
	}
	params := url.Values{}
	params.Set("graph_format", defaultGraphFormat)
	params.Set("as_self", "true")

	raw, err := o.r.do(ctx, request{
		method: http.MethodGet,
		path:   "slices/" + sliceID,
		token:  token,
		params: params,
	})
	if err != nil {
		return nil, err
	}
	var slices []api.Slice
	if err := unmarshalData(raw, &slices); err != nil {
		return nil, err
	}
	if len(slices) == 0 {
		return nil, ErrEmptyResponse
	}
	return &slices[0], nil
}

// CreateSliceRequest carries a slice creation. The graph model
// describes the requested topology, SSHKeys authorize login to the
// provisioned nodes. Lease times use TimeFormat.
type CreateSliceRequest struct {
	Name           string
	GraphModel     string
	SSHKeys        []string
	LeaseStartTime string
	LeaseEndTime   string
	LifetimeHours  int
}

// CreateSlice submits a new slice and returns its slivers as reported
// by the control framework.
func (o *Orchestrator) CreateSlice(ctx context.Context, token string, req CreateSliceRequest) ([]api.Sliver, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}
	if req.Name == "" {
		return nil, fmt.Errorf("slice name must be specified")
	}
	if req.GraphModel == "" {
		return nil, fmt.Errorf("graph model must be specified")
	}
	if len(req.SSHKeys) == 0 {
		return nil, fmt.Errorf("at least one ssh key must be specified")
	}
	for _, ts := range []string{req.LeaseStartTime, req.LeaseEndTime} {
		if ts == "" {
			continue
		}
		if _, err := time.Parse(TimeFormat, ts); err != nil {
			return nil, fmt.Errorf("lease time %q must use format %q: %w", ts, TimeFormat, err)
		}
	}

	lifetime := req.LifetimeHours
	if lifetime <= 0 {
		lifetime = 24
	}
	params := url.Values{}
	params.Set("name", req.Name)
	params.Set("lifetime", strconv.Itoa(lifetime))
	if req.LeaseStartTime != "" {
		params.Set("lease_start_time", req.LeaseStartTime)
	}
	if req.LeaseEndTime != "" {
		params.Set("lease_end_time", req.LeaseEndTime)
	}

	raw, err := o.r.do(ctx, request{
		method: http.MethodPost,
		path:   "slices/creates",
		token:  token,
		params: params,
		body: map[string]any{
			"graph_model": req.GraphModel,
			"ssh_keys":    req.SSHKeys,
		},
	})
	if err != nil {
		return nil, err
	}
	var slivers []api.Sliver
	if err := unmarshalData(raw, &slivers); err != nil {
		return nil, err
	}
	return slivers, nil
}

// DeleteSlice tears down one slice, or every slice owned by the caller
// when sliceID is empty.
func (o *Orchestrator) DeleteSlice(ctx context.Context, token, sliceID string) error {
	if token == "" {
		return fmt.Errorf("token must be specified")
	}
	path := "slices/delete"
	if sliceID != "" {
		path = "slices/delete/" + sliceID
	}
	_, err := o.r.do(ctx, request{method: http.MethodDelete, path: path, token: token})
	return err
}

// RenewSlice extends a slice lease to the given end time (TimeFormat).
func (o *Orchestrator) RenewSlice(ctx context.Context, token, sliceID, leaseEndTime string) error {
	if token == "" {
		return fmt.Errorf("token must be specified")
	}
	if sliceID == "" {
		return fmt.Errorf("slice id must be specified")
	}
	if _, err := time.Parse(TimeFormat, leaseEndTime); err != nil {
		return fmt.Errorf("lease end time %q must use format %q: %w", leaseEndTime, TimeFormat, err)
	}
	params := url.Values{}
	params.Set("lease_end_time", leaseEndTime)
	_, err := o.r.do(ctx, request{
		method: http.MethodPost,
		path:   "slices/renew/" + sliceID,
		token:  token,
		params: params,
	})
	return err
}

// Slivers lists the slivers of one slice.
func (o *Orchestrator) Slivers(ctx context.Context, token, sliceID string) ([]api.Sliver, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}
	if sliceID == "" {
		return nil, fmt.Errorf("slice id must be specified")
	}
	params := url.Values{}
	params.Set("slice_id", sliceID)
	params.Set("as_self", "true")

	raw, err := o.r.do(ctx, request{
		method: http.MethodGet,
		path:   "slivers",
		token:  token,
		params: params,
	})
	if err != nil {
		return nil, err
	}
	var slivers []api.Sliver
	if err := unmarshalData(raw, &slivers); err != nil {
		return nil, err
	}
	return slivers, nil
}

// PoaRequest describes an operational action against a sliver, such as
// cpuinfo, numainfo, reboot, or ssh key management.
type PoaRequest struct {
	Operation  string
	VcpuCpuMap []map[string]string
	NodeSet    []string
	Keys       []map[string]string
	Bdf        []string
}

// SubmitPoa submits an operational action for one sliver and returns
// the tracking records.
func (o *Orchestrator) SubmitPoa(ctx context.Context, token, sliverID string, req PoaRequest) ([]api.Poa, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}
	if sliverID == "" {
		return nil, fmt.Errorf("sliver id must be specified")
	}
	if req.Operation == "" {
		return nil, fmt.Errorf("operation must be specified")
	}

	body := map[string]any{"operation": req.Operation}
	data := map[string]any{}
	if len(req.VcpuCpuMap) > 0 {
		data["vcpu_cpu_map"] = req.VcpuCpuMap
	}
	if len(req.NodeSet) > 0 {
		data["node_set"] = req.NodeSet
	}
	if len(req.Keys) > 0 {
		data["keys"] = req.Keys
	}
	if len(req.Bdf) > 0 {
		data["bdf"] = req.Bdf
	}
	if len(data) > 0 {
		body["data"] = data
	}

	raw, err := o.r.do(ctx, request{
		method: http.MethodPost,
		path:   "poas/create/" + sliverID,
		token:  token,
		body:   body,
	})
	if err != nil {
		return nil, err
	}
	var poas []api.Poa
	if err := unmarshalData(raw, &poas); err != nil {
		return nil, err
	}
	return poas, nil
}

// ListPoasOptions narrows a POA listing to one sliver or one action.
type ListPoasOptions struct {
	PoaID    string
	SliverID string
	Limit    int
	Offset   int
}

// Poas lists submitted operational actions and their states.
func (o *Orchestrator) Poas(ctx context.Context, token string, opts ListPoasOptions) ([]api.Poa, error) {
	if token == "" {
		return nil, fmt.Errorf("token must be specified")
	}

	req := request{method: http.MethodGet, token: token}
	if opts.PoaID != "" {
		req.path = "poas/" + opts.PoaID
	} else {
		limit := opts.Limit
		if limit <= 0 {
			limit = defaultPageSize
		}
		params := url.Values{}
		params.Set("limit", strconv.Itoa(limit))
		params.Set("offset", strconv.Itoa(opts.Offset))
		if opts.SliverID != "" {
			params.Set("sliver_id", opts.SliverID)
		}
		req.path = "poas/"
		req.params = params
	}

	raw, err := o.r.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var poas []api.Poa
	if err := unmarshalData(raw, &poas); err != nil {
		return nil, err
	}
	return poas, nil
}

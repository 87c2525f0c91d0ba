package v1alpha1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshbed/testbed-manager/internal/service"
	"github.com/meshbed/testbed-manager/internal/topology"
)

const topologyModel = `{
	"sites": {
		"STAR": {
			"state": "Active",
			"children": {
				"node+star-w1": {
					"type": "Server", "name": "star-w1",
					"capacities": {"core": 64, "ram": 512, "disk": 4800},
					"capacity_allocations": {"core": 10, "ram": 64, "disk": 500}
				}
			}
		},
		"UCSD": {
			"state": "Active",
			"children": {
				"node+ucsd-w1": {
					"type": "Server", "name": "ucsd-w1",
					"capacities": {"core": 128, "ram": 1024, "disk": 9600},
					"capacity_allocations": {"core": 120, "ram": 512, "disk": 100}
				}
			}
		}
	},
	"facilities": {
		"Chameleon-StarLight": {
			"site": "STAR",
			"interface_list": [{
				"name": "Chameleon-StarLight-int",
				"type": "FacilityPort",
				"labels": {"local_name": "TwentyFiveGigE0/0/0/23/1", "vlan_range": ["3300-3309"]}
			}]
		}
	},
	"links": {
		"link+star-ucsd": {
			"name": "STAR-UCSD", "layer": "L2",
			"capacities": {"bw": 100},
			"interface_list": [
				{"name": "HundredGigE0/0/0/15", "node_id": "node+star-w1"},
				{"name": "HundredGigE0/0/0/9", "node_id": "node+ucsd-w1"}
			]
		}
	}
}`

type fakeProvider struct {
	model  string
	err    error
	tokens []string
}

func (p *fakeProvider) Snapshot(_ context.Context, token string) (*topology.Graph, error) {
	p.tokens = append(p.tokens, token)
	if p.err != nil {
		return nil, p.err
	}
	return topology.ParseGraph([]byte(p.model))
}

func newTestServer(provider service.SnapshotProvider) *httptest.Server {
	router := chi.NewRouter()
	NewServiceHandler(service.NewTopologyService(provider, nil)).RegisterRoutes(router)
	return httptest.NewServer(router)
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body string, out any) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestListSites(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var reply RecordListReply
	status := getJSON(t, srv.URL+"/api/v1/sites", &reply)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, reply.Count)
	assert.Equal(t, "STAR", reply.Records[0]["name"])
	assert.Equal(t, "UCSD", reply.Records[1]["name"])
	assert.EqualValues(t, 64, reply.Records[0]["cores_capacity"])
}

func TestListSitesPaging(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var reply RecordListReply
	status := getJSON(t, srv.URL+"/api/v1/sites?limit=1&offset=1", &reply)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, reply.Count)
	assert.Equal(t, "UCSD", reply.Records[0]["name"])
}

func TestListSitesRejectsBadPaging(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	tests := []struct {
		name  string
		query string
	}{
		{name: "limit not a number", query: "?limit=nope"},
		{name: "negative limit", query: "?limit=-1"},
		{name: "offset not a number", query: "?offset=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := getJSON(t, srv.URL+"/api/v1/sites"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
}

func TestQuerySitesWithFilter(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var reply RecordListReply
	status := postJSON(t, srv.URL+"/api/v1/sites/query", `{"filter": {"cores_available": {"gte": 50}}}`, &reply)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, reply.Count)
	assert.Equal(t, "STAR", reply.Records[0]["name"])
}

func TestQuerySitesWithPaging(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var reply RecordListReply
	status := postJSON(t, srv.URL+"/api/v1/sites/query", `{"limit": 1, "offset": 1}`, &reply)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, reply.Count)
	assert.Equal(t, "UCSD", reply.Records[0]["name"])
}

func TestQueryRejectsBadBody(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `{"filter": `},
		{name: "filter not a mapping", body: `{"filter": "name"}`},
		{name: "filter is a list", body: `{"filter": [1, 2]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var errReply ErrorReply
			status := postJSON(t, srv.URL+"/api/v1/sites/query", tt.body, &errReply)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, errReply.Message)
		})
	}
}

func TestGetSite(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var record map[string]any
	status := getJSON(t, srv.URL+"/api/v1/sites/UCSD", &record)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "UCSD", record["name"])
	assert.EqualValues(t, 128, record["cores_capacity"])
}

func TestGetSiteNotFound(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var errReply ErrorReply
	status := getJSON(t, srv.URL+"/api/v1/sites/NOWHERE", &errReply)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, errReply.Message, "NOWHERE")
}

func TestListHostsAndLinksAndFacilityPorts(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	tests := []struct {
		path  string
		count int
		first string
	}{
		{path: "/api/v1/hosts", count: 2, first: "star-w1"},
		{path: "/api/v1/facility-ports", count: 1, first: "Chameleon-StarLight"},
		{path: "/api/v1/links", count: 1, first: "STAR-UCSD"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			var reply RecordListReply
			status := getJSON(t, srv.URL+tt.path, &reply)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.count, reply.Count)
			assert.Equal(t, tt.first, reply.Records[0]["name"])
		})
	}
}

func TestBearerTokenReachesProvider(t *testing.T) {
	provider := &fakeProvider{model: topologyModel}
	srv := newTestServer(provider)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/sites", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer caller-token")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, provider.tokens, 1)
	assert.Equal(t, "caller-token", provider.tokens[0])
}

func TestSnapshotFailureMapsToBadGateway(t *testing.T) {
	srv := newTestServer(&fakeProvider{err: errors.New("orchestrator down")})
	defer srv.Close()

	var errReply ErrorReply
	status := getJSON(t, srv.URL+"/api/v1/sites", &errReply)

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, errReply.Message, "topology snapshot unavailable")
}

func TestGetInfo(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	var reply InfoReply
	status := getJSON(t, srv.URL+"/api/v1/info", &reply)

	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, reply.VersionName)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeProvider{model: topologyModel})
	defer srv.Close()

	resp, err := http.Get(fmt.Sprintf("%s/health", srv.URL))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

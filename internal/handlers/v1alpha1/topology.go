package v1alpha1

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/meshbed/testbed-manager/internal/query"
	"github.com/meshbed/testbed-manager/internal/service"
)

// ServiceHandler exposes the topology query façade over HTTP. Every
// request triggers one snapshot fetch and one index build; the bearer
// token from the Authorization header is handed through to the
// orchestrator untouched.
type ServiceHandler struct {
	topologySrv *service.TopologyService
}

func NewServiceHandler(topologyService *service.TopologyService) *ServiceHandler {
	return &ServiceHandler{
		topologySrv: topologyService,
	}
}

func (s *ServiceHandler) RegisterRoutes(router chi.Router) {
	router.Get("/health", s.health)
	router.Get("/api/v1/info", s.getInfo)

	router.Get("/api/v1/sites", s.listHandler(s.topologySrv.QuerySites))
	router.Post("/api/v1/sites/query", s.queryHandler(s.topologySrv.QuerySites))
	router.Get("/api/v1/sites/{name}", s.getSite)

	router.Get("/api/v1/hosts", s.listHandler(s.topologySrv.QueryHosts))
	router.Post("/api/v1/hosts/query", s.queryHandler(s.topologySrv.QueryHosts))

	router.Get("/api/v1/facility-ports", s.listHandler(s.topologySrv.QueryFacilityPorts))
	router.Post("/api/v1/facility-ports/query", s.queryHandler(s.topologySrv.QueryFacilityPorts))

	router.Get("/api/v1/links", s.listHandler(s.topologySrv.QueryLinks))
	router.Post("/api/v1/links/query", s.queryHandler(s.topologySrv.QueryLinks))
}

// QueryRequest is the body of the POST query endpoints. Filter carries
// the mapping form of the filter language.
type QueryRequest struct {
	Filter json.RawMessage `json:"filter,omitempty"`
	Limit  *int            `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

type RecordListReply struct {
	Count   int            `json:"count"`
	Records []query.Record `json:"records"`
}

type RecordReply query.Record

type ErrorReply struct {
	HTTPStatusCode int    `json:"-"`
	Message        string `json:"message"`
}

func (rr RecordListReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (rr RecordReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

type queryFn func(ctx context.Context, opts service.QueryOptions) ([]query.Record, error)

// (GET /api/v1/{kind})
func (s *ServiceHandler) listHandler(list queryFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset, err := pageParams(r)
		if err != nil {
			_ = render.Render(w, r, ErrorReply{HTTPStatusCode: http.StatusBadRequest, Message: err.Error()})
			return
		}

		records, err := list(r.Context(), service.QueryOptions{
			Token:  bearerToken(r),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			renderError(w, r, err)
			return
		}

		_ = render.Render(w, r, RecordListReply{Count: len(records), Records: records})
	}
}

// (POST /api/v1/{kind}/query)
func (s *ServiceHandler) queryHandler(list queryFn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			_ = render.Render(w, r, ErrorReply{HTTPStatusCode: http.StatusBadRequest, Message: fmt.Sprintf("invalid query body: %v", err)})
			return
		}

		opts := service.QueryOptions{
			Token:  bearerToken(r),
			Limit:  req.Limit,
			Offset: req.Offset,
		}
		if len(req.Filter) > 0 {
			spec, err := query.ParseSpec(req.Filter)
			if err != nil {
				renderError(w, r, service.NewErrInvalidFilter(err))
				return
			}
			opts.Filter = spec
		}

		records, err := list(r.Context(), opts)
		if err != nil {
			renderError(w, r, err)
			return
		}

		_ = render.Render(w, r, RecordListReply{Count: len(records), Records: records})
	}
}

// (GET /api/v1/sites/{name})
func (s *ServiceHandler) getSite(w http.ResponseWriter, r *http.Request) {
	record, err := s.topologySrv.GetSite(r.Context(), bearerToken(r), chi.URLParam(r, "name"))
	if err != nil {
		renderError(w, r, err)
		return
	}

	_ = render.Render(w, r, RecordReply(record))
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *service.ErrResourceNotFound:
		status = http.StatusNotFound
	case *service.ErrInvalidFilter:
		status = http.StatusBadRequest
	case *service.ErrTopologyUnavailable:
		status = http.StatusBadGateway
	}
	_ = render.Render(w, r, ErrorReply{HTTPStatusCode: status, Message: err.Error()})
}

func pageParams(r *http.Request) (*int, int, error) {
	var limit *int
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, 0, fmt.Errorf("limit must be a non-negative integer")
		}
		limit = &n
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return nil, 0, fmt.Errorf("offset must be a non-negative integer")
		}
		offset = n
	}

	return limit, offset, nil
}

func bearerToken(r *http.Request) string {
	accessToken := r.Header.Get("Authorization")
	if accessToken == "" || len(accessToken) < len("Bearer ") {
		return ""
	}
	return accessToken[len("Bearer "):]
}

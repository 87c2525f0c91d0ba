package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/meshbed/testbed-manager/internal/client"
)

const snapshotReply = `{
	"data": [{
		"model": {
			"sites": {
				"STAR": {
					"state": "Active",
					"children": {
						"star-w1": {"type": "Server", "name": "star-w1", "capacities": {"core": 64}}
					}
				}
			},
			"links": {
				"link+star-ucsd": {"name": "STAR-UCSD", "layer": "L2"}
			}
		}
	}]
}`

var _ = Describe("orchestrator client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Snapshot", func() {
		It("fetches the model at full site detail", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/resources"))
				Expect(r.URL.Query().Get("level")).To(Equal("2"))
				Expect(r.URL.Query().Get("force_refresh")).To(Equal("false"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer id-token"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(snapshotReply))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			graph, err := orchestrator.Snapshot(ctx, "id-token")

			Expect(err).To(BeNil())
			Expect(graph.Sites).To(HaveKey("STAR"))
			Expect(graph.Links).To(HaveKey("link+star-ucsd"))
		})

		It("accepts a model serialized as a JSON string", func() {
			model := `{"sites": {"RENC": {"state": "Active"}}}`
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": []map[string]any{{"model": model}},
				})
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			graph, err := orchestrator.Snapshot(ctx, "id-token")

			Expect(err).To(BeNil())
			Expect(graph.Sites).To(HaveKey("RENC"))
		})

		It("returns ErrEmptyResponse when no model comes back", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": []}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			_, err := orchestrator.Snapshot(ctx, "id-token")

			Expect(errors.Is(err, client.ErrEmptyResponse)).To(BeTrue())
		})
	})

	Describe("Resources", func() {
		It("forwards site filters and the availability window", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				Expect(q.Get("level")).To(Equal("1"))
				Expect(q.Get("force_refresh")).To(Equal("true"))
				Expect(q.Get("start_date")).To(Equal("2026-08-25 10:00:00 +0000"))
				Expect(q.Get("includes")).To(Equal("STAR, UCSD"))
				Expect(q.Get("excludes")).To(Equal("RENC"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(snapshotReply))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			_, err := orchestrator.Resources(ctx, "id-token", client.ResourceOptions{
				ForceRefresh: true,
				StartDate:    "2026-08-25 10:00:00 +0000",
				Includes:     []string{"STAR", "UCSD"},
				Excludes:     []string{"RENC"},
			})

			Expect(err).To(BeNil())
		})

		It("rejects malformed dates before calling out", func() {
			orchestrator := client.NewOrchestrator("orchestrator.example.net")
			_, err := orchestrator.Resources(ctx, "id-token", client.ResourceOptions{
				StartDate: "tomorrow",
			})

			Expect(err).NotTo(BeNil())
			Expect(err.Error()).To(ContainSubstring("must use format"))
		})
	})

	Describe("PortalResources", func() {
		It("fetches the public advertisement without a token", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/portalresources"))
				Expect(r.URL.Query().Get("graph_format")).To(Equal("JSON_NODELINK"))
				Expect(r.Header.Get("Authorization")).To(BeEmpty())

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(snapshotReply))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			graph, err := orchestrator.PortalResources(ctx, "")

			Expect(err).To(BeNil())
			Expect(graph.Sites).To(HaveKey("STAR"))
		})
	})

	Describe("Slices", func() {
		It("lists with paging, scope and state filters", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/slices"))
				q := r.URL.Query()
				Expect(q.Get("limit")).To(Equal("20"))
				Expect(q.Get("offset")).To(Equal("0"))
				Expect(q.Get("as_self")).To(Equal("true"))
				Expect(q["states"]).To(Equal([]string{"StableOK", "StableError"}))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"slice_id": "s1", "name": "exp-1", "state": "StableOK"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			slices, err := orchestrator.Slices(ctx, "id-token", client.ListSlicesOptions{
				States: []string{"StableOK", "StableError"},
			})

			Expect(err).To(BeNil())
			Expect(slices).To(HaveLen(1))
			Expect(slices[0].Name).To(Equal("exp-1"))
		})

		It("fetches one slice by id", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/slices/s1"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"slice_id": "s1", "model": "{}"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			slice, err := orchestrator.GetSlice(ctx, "id-token", "s1")

			Expect(err).To(BeNil())
			Expect(slice.SliceID).To(Equal("s1"))
		})
	})

	Describe("CreateSlice", func() {
		It("posts the graph model with the ssh keys", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/slices/creates"))
				Expect(r.URL.Query().Get("name")).To(Equal("exp-1"))
				Expect(r.URL.Query().Get("lifetime")).To(Equal("24"))

				var body map[string]any
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["graph_model"]).To(Equal(`{"nodes": []}`))
				Expect(body["ssh_keys"]).To(Equal([]any{"ssh-ed25519 AAAA"}))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"sliver_id": "sv1", "state": "Ticketed"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			slivers, err := orchestrator.CreateSlice(ctx, "id-token", client.CreateSliceRequest{
				Name:       "exp-1",
				GraphModel: `{"nodes": []}`,
				SSHKeys:    []string{"ssh-ed25519 AAAA"},
			})

			Expect(err).To(BeNil())
			Expect(slivers).To(HaveLen(1))
			Expect(slivers[0].SliverID).To(Equal("sv1"))
		})

		It("requires at least one ssh key", func() {
			orchestrator := client.NewOrchestrator("orchestrator.example.net")
			_, err := orchestrator.CreateSlice(ctx, "id-token", client.CreateSliceRequest{
				Name:       "exp-1",
				GraphModel: "{}",
			})

			Expect(err).NotTo(BeNil())
			Expect(err.Error()).To(ContainSubstring("ssh key"))
		})
	})

	Describe("DeleteSlice", func() {
		It("deletes one slice by id", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodDelete))
				Expect(r.URL.Path).To(Equal("/slices/delete/s1"))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": []}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			Expect(orchestrator.DeleteSlice(ctx, "id-token", "s1")).To(Succeed())
		})

		It("deletes all slices when no id is given", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/slices/delete"))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": []}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			Expect(orchestrator.DeleteSlice(ctx, "id-token", "")).To(Succeed())
		})
	})

	Describe("RenewSlice", func() {
		It("validates the lease end time before calling out", func() {
			orchestrator := client.NewOrchestrator("orchestrator.example.net")
			err := orchestrator.RenewSlice(ctx, "id-token", "s1", "next week")

			Expect(err).NotTo(BeNil())
			Expect(err.Error()).To(ContainSubstring("must use format"))
		})

		It("posts the new lease end time", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/slices/renew/s1"))
				Expect(r.URL.Query().Get("lease_end_time")).To(Equal("2026-09-01 00:00:00 +0000"))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": []}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			err := orchestrator.RenewSlice(ctx, "id-token", "s1", "2026-09-01 00:00:00 +0000")

			Expect(err).To(BeNil())
		})
	})

	Describe("Slivers", func() {
		It("lists the slivers of one slice", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/slivers"))
				Expect(r.URL.Query().Get("slice_id")).To(Equal("s1"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"sliver_id": "sv1", "sliver_type": "NodeSliver"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			slivers, err := orchestrator.Slivers(ctx, "id-token", "s1")

			Expect(err).To(BeNil())
			Expect(slivers).To(HaveLen(1))
			Expect(slivers[0].SliverType).To(Equal("NodeSliver"))
		})
	})

	Describe("POAs", func() {
		It("submits an operational action with its data", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/poas/create/sv1"))

				var body map[string]any
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["operation"]).To(Equal("addkey"))
				data, ok := body["data"].(map[string]any)
				Expect(ok).To(BeTrue())
				Expect(data).To(HaveKey("keys"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"poa_id": "p1", "state": "Nascent"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			poas, err := orchestrator.SubmitPoa(ctx, "id-token", "sv1", client.PoaRequest{
				Operation: "addkey",
				Keys:      []map[string]string{{"key": "ssh-ed25519 AAAA", "comment": "laptop"}},
			})

			Expect(err).To(BeNil())
			Expect(poas).To(HaveLen(1))
			Expect(poas[0].PoaID).To(Equal("p1"))
		})

		It("fetches one action by id", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/poas/p1"))
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"poa_id": "p1", "state": "Success"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			poas, err := orchestrator.Poas(ctx, "id-token", client.ListPoasOptions{PoaID: "p1"})

			Expect(err).To(BeNil())
			Expect(poas).To(HaveLen(1))
			Expect(poas[0].State).To(Equal("Success"))
		})

		It("lists actions for one sliver", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/poas/"))
				Expect(r.URL.Query().Get("sliver_id")).To(Equal("sv1"))
				Expect(r.URL.Query().Get("limit")).To(Equal("20"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"poa_id": "p1"}, {"poa_id": "p2"}]}`))
			}))
			defer server.Close()

			orchestrator := client.NewOrchestrator(server.URL)
			poas, err := orchestrator.Poas(ctx, "id-token", client.ListPoasOptions{SliverID: "sv1"})

			Expect(err).To(BeNil())
			Expect(poas).To(HaveLen(2))
		})
	})
})

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

var _ = Describe("credmgr client", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("Refresh", func() {
		It("posts the refresh token and returns the new pair", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/credmgr/tokens/refresh"))
				Expect(r.URL.Query().Get("scope")).To(Equal("all"))
				Expect(r.URL.Query().Get("project_id")).To(Equal("proj-1"))

				var body map[string]string
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["refresh_token"]).To(Equal("rt-old"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"id_token": "id-new", "refresh_token": "rt-new", "expires_at": "2026-01-02 15:04:05 +0000"}]}`))
			}))
			defer server.Close()

			credmgr := client.NewCredmgr(server.URL)
			token, err := credmgr.Refresh(ctx, client.RefreshRequest{
				RefreshToken: "rt-old",
				ProjectID:    "proj-1",
			})

			Expect(err).To(BeNil())
			Expect(token.IDToken).To(Equal("id-new"))
			Expect(token.RefreshToken).To(Equal("rt-new"))
		})

		It("returns ErrEmptyResponse when the reply has no tokens", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": []}`))
			}))
			defer server.Close()

			credmgr := client.NewCredmgr(server.URL)
			_, err := credmgr.Refresh(ctx, client.RefreshRequest{RefreshToken: "rt"})

			Expect(errors.Is(err, client.ErrEmptyResponse)).To(BeTrue())
		})

		It("requires a refresh token", func() {
			credmgr := client.NewCredmgr("cm.example.net")
			_, err := credmgr.Refresh(ctx, client.RefreshRequest{})

			Expect(err).NotTo(BeNil())
			Expect(err.Error()).To(ContainSubstring("refresh token must be specified"))
		})
	})

	Describe("Revoke", func() {
		It("authorizes with the identity token and names the target", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodPost))
				Expect(r.URL.Path).To(Equal("/credmgr/tokens/revokes"))
				Expect(r.Header.Get("Authorization")).To(Equal("Bearer id-token"))

				var body map[string]string
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["type"]).To(Equal("refresh"))
				Expect(body["token"]).To(Equal("rt-dead"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": []}`))
			}))
			defer server.Close()

			credmgr := client.NewCredmgr(server.URL)
			err := credmgr.Revoke(ctx, "id-token", client.TokenTypeRefresh, "rt-dead")

			Expect(err).To(BeNil())
		})
	})

	Describe("Validate", func() {
		It("returns the decoded claims", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/credmgr/tokens/validate"))

				var body map[string]string
				Expect(json.NewDecoder(r.Body).Decode(&body)).To(Succeed())
				Expect(body["type"]).To(Equal("identity"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"token": {"email": "user@example.net", "projects": ["proj-1"]}}`))
			}))
			defer server.Close()

			credmgr := client.NewCredmgr(server.URL)
			claims, err := credmgr.Validate(ctx, "id-token")

			Expect(err).To(BeNil())
			Expect(claims["email"]).To(Equal("user@example.net"))
		})
	})

	Describe("Tokens", func() {
		It("pages through the caller's tokens", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.Method).To(Equal(http.MethodGet))
				Expect(r.URL.Path).To(Equal("/credmgr/tokens"))
				Expect(r.URL.Query().Get("limit")).To(Equal("5"))
				Expect(r.URL.Query().Get("offset")).To(Equal("10"))
				Expect(r.URL.Query()["states"]).To(Equal([]string{"Valid", "Refreshed"}))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"data": [{"token_hash": "abc", "state": "Valid"}]}`))
			}))
			defer server.Close()

			credmgr := client.NewCredmgr(server.URL)
			tokens, err := credmgr.Tokens(ctx, "id-token", client.ListTokensOptions{
				Limit:  5,
				Offset: 10,
				States: []string{"Valid", "Refreshed"},
			})

			Expect(err).To(BeNil())
			Expect(tokens).To(HaveLen(1))
			Expect(tokens[0].TokenHash).To(Equal("abc"))
		})
	})
})

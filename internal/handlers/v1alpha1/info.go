package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"

	"github.com/meshbed/testbed-manager/pkg/version"
)

type InfoReply struct {
	VersionName string `json:"version_name"`
	GitCommit   string `json:"git_commit"`
}

func (i InfoReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// (GET /api/v1/info)
func (s *ServiceHandler) getInfo(w http.ResponseWriter, r *http.Request) {
	versionInfo := version.Get()

	_ = render.Render(w, r, InfoReply{
		VersionName: versionInfo.GitVersion,
		GitCommit:   versionInfo.GitCommit,
	})
}

// (GET /health)
func (s *ServiceHandler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

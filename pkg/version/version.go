package version

// Overridden at build time:
//
//	go build -ldflags "-X github.com/meshbed/testbed-manager/pkg/version.gitVersion=v1.2.3 \
//	  -X github.com/meshbed/testbed-manager/pkg/version.gitCommit=abc1234"
var (
	gitVersion = "v0.0.0-unknown"
	gitCommit  = ""
)

type Info struct {
	GitVersion string `json:"gitVersion"`
	GitCommit  string `json:"gitCommit"`
}

// Get returns the version information stamped into the binary.
func Get() Info {
	return Info{
		GitVersion: gitVersion,
		GitCommit:  gitCommit,
	}
}

func (i Info) String() string {
	return i.GitVersion
}

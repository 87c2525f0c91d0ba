package v1alpha1

// Slice is the orchestrator's representation of one experiment slice.
type Slice struct {
	SliceID        string `json:"slice_id"`
	Name           string `json:"name,omitempty"`
	State          string `json:"state,omitempty"`
	Model          string `json:"model,omitempty"`
	LeaseStartTime string `json:"lease_start_time,omitempty"`
	LeaseEndTime   string `json:"lease_end_time,omitempty"`
	ProjectID      string `json:"project_id,omitempty"`
	ProjectName    string `json:"project_name,omitempty"`
	GraphID        string `json:"graph_id,omitempty"`
	OwnerUserID    string `json:"owner_user_id,omitempty"`
	OwnerEmail     string `json:"owner_email,omitempty"`
}

// SliceCreateForm carries the user-supplied fields of a slice create
// request. Field rules are enforced with the slice validation rules
// before the request reaches the orchestrator.
type SliceCreateForm struct {
	Name           string   `json:"name" validate:"required,max=100,slice_name"`
	GraphModel     string   `json:"graph_model" validate:"required"`
	SSHKeys        []string `json:"ssh_keys" validate:"required,min=1,dive,ssh_key"`
	LeaseStartTime string   `json:"lease_start_time,omitempty" validate:"lease_time"`
	LeaseEndTime   string   `json:"lease_end_time,omitempty" validate:"lease_time"`
	LifetimeHours  int      `json:"lifetime,omitempty" validate:"gte=0"`
}

// Sliver is one provisioned resource of a slice.
type Sliver struct {
	SliverID       string         `json:"sliver_id"`
	SliceID        string         `json:"slice_id"`
	GraphNodeID    string         `json:"graph_node_id,omitempty"`
	SliverType     string         `json:"sliver_type,omitempty"`
	Sliver         map[string]any `json:"sliver,omitempty"`
	LeaseStartTime string         `json:"lease_start_time,omitempty"`
	LeaseEndTime   string         `json:"lease_end_time,omitempty"`
	State          string         `json:"state,omitempty"`
	PendingState   string         `json:"pending_state,omitempty"`
	JoinState      string         `json:"join_state,omitempty"`
	Notice         string         `json:"notice,omitempty"`
	OwnerUserID    string         `json:"owner_user_id,omitempty"`
	OwnerEmail     string         `json:"owner_email,omitempty"`
}

// Poa describes a performed-on-a-sliver operational action and its
// outcome.
type Poa struct {
	PoaID     string         `json:"poa_id,omitempty"`
	Operation string         `json:"operation,omitempty"`
	State     string         `json:"state,omitempty"`
	SliverID  string         `json:"sliver_id,omitempty"`
	SliceID   string         `json:"slice_id,omitempty"`
	Error     string         `json:"error,omitempty"`
	Info      map[string]any `json:"info,omitempty"`
}

// Token is the credential manager's representation of one issued token
// pair. List responses omit the token material and carry only metadata.
type Token struct {
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	TokenHash    string `json:"token_hash,omitempty"`
	State        string `json:"state,omitempty"`
	CreatedFrom  string `json:"created_from,omitempty"`
	Comment      string `json:"comment,omitempty"`
}

package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"vcamd/internal/status"
)

// StatusResponse wraps the health snapshot.
type StatusResponse struct {
	Body status.Snapshot
}

// registerStatusRoutes registers the health endpoint.
func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Current health snapshot: pipeline liveness, resolved devices, and health category",
		Tags:        []string{"status"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*StatusResponse, error) {
		snap := s.options.Status.Poll(ctx)
		return &StatusResponse{Body: snap}, nil
	})
}

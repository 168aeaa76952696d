package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"vcamd/internal/devices"
	"vcamd/internal/loopback"
	"vcamd/internal/pipeline"
)

// PipelineInfoBody is the wire form of a pipeline snapshot.
type PipelineInfoBody struct {
	State        string `json:"state" example:"running" doc:"Pipeline state"`
	PID          int    `json:"pid,omitempty" example:"12345" doc:"Relay process ID"`
	InputPath    string `json:"input_path,omitempty" example:"/dev/video0" doc:"Capture device"`
	OutputPath   string `json:"output_path,omitempty" example:"/dev/video10" doc:"Virtual device"`
	RestartCount int    `json:"restart_count" example:"0" doc:"Automatic restarts since last stable run"`
	LastError    string `json:"last_error,omitempty" doc:"Most recent relay error"`
}

// PipelineResponse wraps a pipeline snapshot.
type PipelineResponse struct {
	Body PipelineInfoBody
}

func pipelineBody(info pipeline.Info) PipelineInfoBody {
	return PipelineInfoBody{
		State:        string(info.State),
		PID:          info.PID,
		InputPath:    info.InputPath,
		OutputPath:   info.OutputPath,
		RestartCount: info.RestartCount,
		LastError:    info.LastError,
	}
}

// mapPipelineError translates lifecycle failures to HTTP status codes.
func mapPipelineError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrAlreadyRunning):
		return huma.Error409Conflict("Pipeline already running", err)
	case errors.Is(err, devices.ErrDeviceNotFound):
		return huma.Error404NotFound("Device not found", err)
	case errors.Is(err, loopback.ErrPermissionDenied):
		return huma.Error403Forbidden("Not permitted to manage kernel module", err)
	case errors.Is(err, pipeline.ErrUnrecoverable):
		return huma.Error503ServiceUnavailable("Pipeline unrecoverable", err)
	default:
		return huma.Error500InternalServerError("Pipeline operation failed", err)
	}
}

// registerPipelineRoutes registers pipeline lifecycle endpoints.
func (s *Server) registerPipelineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-pipeline",
		Method:      http.MethodGet,
		Path:        "/api/pipeline",
		Summary:     "Pipeline State",
		Description: "Current relay process state, liveness-derived",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*PipelineResponse, error) {
		return &PipelineResponse{Body: pipelineBody(s.options.Pipeline.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/start",
		Summary:     "Start Pipeline",
		Description: "Resolve devices and launch the relay process",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 403, 404, 409, 500},
	}, func(ctx context.Context, _ *struct{}) (*PipelineResponse, error) {
		if err := s.options.Pipeline.Start(ctx); err != nil {
			return nil, mapPipelineError(err)
		}
		return &PipelineResponse{Body: pipelineBody(s.options.Pipeline.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/stop",
		Summary:     "Stop Pipeline",
		Description: "Gracefully stop the relay process; a no-op when idle",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, _ *struct{}) (*PipelineResponse, error) {
		if err := s.options.Pipeline.Stop(ctx); err != nil {
			return nil, mapPipelineError(err)
		}
		return &PipelineResponse{Body: pipelineBody(s.options.Pipeline.Status())}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "restart-pipeline",
		Method:      http.MethodPost,
		Path:        "/api/pipeline/restart",
		Summary:     "Restart Pipeline",
		Description: "Stop the relay if running, then start it fresh",
		Tags:        []string{"pipeline"},
		Security:    withAuth(),
		Errors:      []int{401, 403, 404, 500},
	}, func(ctx context.Context, _ *struct{}) (*PipelineResponse, error) {
		if err := s.options.Pipeline.Stop(ctx); err != nil {
			return nil, mapPipelineError(err)
		}
		if err := s.options.Pipeline.Start(ctx); err != nil {
			return nil, mapPipelineError(err)
		}
		return &PipelineResponse{Body: pipelineBody(s.options.Pipeline.Status())}, nil
	})
}

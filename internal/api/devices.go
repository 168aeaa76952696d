package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// DeviceInfoBody describes one enumerated V4L2 device.
type DeviceInfoBody struct {
	DevicePath string `json:"device_path" example:"/dev/video0" doc:"Device node path"`
	DeviceName string `json:"device_name" example:"Elgato Facecam" doc:"Card label"`
	DeviceID   string `json:"device_id" example:"usb-Elgato_Facecam-video-index0" doc:"Stable identifier"`
	Index      int    `json:"index" example:"0" doc:"Kernel device index"`
	Capture    bool   `json:"capture" doc:"Can capture video"`
	Output     bool   `json:"output" doc:"Accepts video output (loopback)"`
}

// DevicesResponse wraps the device list.
type DevicesResponse struct {
	Body struct {
		Devices []DeviceInfoBody `json:"devices" doc:"All V4L2 devices, sorted by index"`
	}
}

// registerDeviceRoutes registers device enumeration endpoints.
func (s *Server) registerDeviceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Devices",
		Description: "List all available V4L2 video devices",
		Tags:        []string{"devices"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(_ context.Context, _ *struct{}) (*DevicesResponse, error) {
		devs, err := s.options.Devices.Enumerate()
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to enumerate devices", err)
		}

		resp := &DevicesResponse{}
		resp.Body.Devices = make([]DeviceInfoBody, 0, len(devs))
		for _, d := range devs {
			resp.Body.Devices = append(resp.Body.Devices, DeviceInfoBody{
				DevicePath: d.DevicePath,
				DeviceName: d.DeviceName,
				DeviceID:   d.DeviceID,
				Index:      d.Index,
				Capture:    d.IsCapture(),
				Output:     d.IsOutput(),
			})
		}
		return resp, nil
	})
}

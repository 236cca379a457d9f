// Copyright 2026 Embercore
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package builtin

import (
	"context"
	"time"

	"github.com/embercore/ember/pkg/tools/registry"
)

// mediaStub is shared by the four capability-gated tools whose backing
// pipelines (image generation, chat publishing, screen/camera capture) are
// opaque to the core: the agent loop, approval gate and capability policy
// treat them exactly like any other tool, but no concrete hardware or
// generation backend ships with this module. A Handler can be set to wire
// one in; with none, Execute reports the capability as unavailable rather
// than silently pretending to succeed.
type mediaStub struct {
	name        string
	description string
	schema      *registry.JSONSchema
	Handler     func(ctx context.Context, params map[string]any) (*registry.Result, error)
}

func (t *mediaStub) Name() string                     { return t.name }
func (t *mediaStub) Description() string              { return t.description }
func (t *mediaStub) InputSchema() *registry.JSONSchema { return t.schema }
func (t *mediaStub) Execute(ctx context.Context, params map[string]any) (*registry.Result, error) {
	if t.Handler != nil {
		return t.Handler(ctx, params)
	}
	return &registry.Result{
		Success: false,
		Error:   t.name + " has no backend configured for this deployment",
	}, nil
}

const (
	comfyDefaultTimeout = 300 * time.Second
	comfyMaxTimeout     = 900 * time.Second
)

// generateComfyMediaParams is reflected into generate_comfy_media's JSON-Schema.
type generateComfyMediaParams struct {
	Prompt      string `json:"prompt" jsonschema:"required,description=Generation prompt"`
	Workflow    string `json:"workflow,omitempty" jsonschema:"description=Named ComfyUI workflow to run"`
	TimeoutSecs int    `json:"timeout_secs,omitempty" jsonschema:"description=Timeout in seconds (default 300, max 900)"`
}

// NewGenerateComfyMediaTool produces the stub image-generation tool. A
// deployment wires Handler to an actual ComfyUI workflow invocation; left
// nil, it reports itself unavailable so the agent falls back gracefully
// instead of hallucinating an image.
func NewGenerateComfyMediaTool(handler func(ctx context.Context, params map[string]any) (*registry.Result, error)) registry.Tool {
	return &mediaStub{
		name:        "generate_comfy_media",
		description: "Generate an image via a configured ComfyUI workflow.",
		schema:      reflectSchema(&generateComfyMediaParams{}),
		Handler:     handler,
	}
}

// publishMediaToChatParams is reflected into publish_media_to_chat's JSON-Schema.
type publishMediaToChatParams struct {
	MediaRef string `json:"media_ref" jsonschema:"required,description=Reference to a previously generated media artifact"`
	Caption  string `json:"caption,omitempty" jsonschema:"description=Optional caption"`
}

// NewPublishMediaToChatTool produces the stub tool for pushing generated
// media into a chat surface (e.g. the Telegram bridge).
func NewPublishMediaToChatTool(handler func(ctx context.Context, params map[string]any) (*registry.Result, error)) registry.Tool {
	return &mediaStub{
		name:        "publish_media_to_chat",
		description: "Publish a previously generated media artifact to the active chat surface.",
		schema:      reflectSchema(&publishMediaToChatParams{}),
		Handler:     handler,
	}
}

// emptyParams backs the capture tools, which take no arguments.
type emptyParams struct{}

// NewScreenCaptureTool produces the stub screen-capture tool. Capture
// backends are inherently platform-specific, hence the spec treats this as
// an opaque, best-effort capability.
func NewScreenCaptureTool(handler func(ctx context.Context, params map[string]any) (*registry.Result, error)) registry.Tool {
	return &mediaStub{
		name:        "screen_capture",
		description: "Capture a screenshot of the host display, if a capture backend is configured.",
		schema:      reflectSchema(&emptyParams{}),
		Handler:     handler,
	}
}

// NewCameraCaptureTool produces the stub camera-capture tool.
func NewCameraCaptureTool(handler func(ctx context.Context, params map[string]any) (*registry.Result, error)) registry.Tool {
	return &mediaStub{
		name:        "camera_capture",
		description: "Capture a still image from the host camera, if a capture backend is configured.",
		schema:      reflectSchema(&emptyParams{}),
		Handler:     handler,
	}
}

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
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/embercore/ember/pkg/tools/registry"
)

// reflector generates each built-in tool's JSON-Schema from its typed
// parameter struct rather than hand-assembling registry.JSONSchema literals,
// so the schema and the Execute-time field access can never drift apart.
var reflector = &jsonschema.Reflector{
	DoNotReference: true,
	ExpandedStruct: true,
}

// reflectSchema builds a registry.JSONSchema for the zero value of paramsPtr
// (a pointer to a params struct tagged with `jsonschema:"..."`), round-tripping
// through JSON since invopop/jsonschema and registry describe the same shape
// with different Go types.
func reflectSchema(paramsPtr any) *registry.JSONSchema {
	s := reflector.Reflect(paramsPtr)
	data, err := json.Marshal(s)
	if err != nil {
		return &registry.JSONSchema{Type: "object"}
	}
	var out registry.JSONSchema
	if err := json.Unmarshal(data, &out); err != nil {
		return &registry.JSONSchema{Type: "object"}
	}
	if out.Type == "" {
		out.Type = "object"
	}
	return &out
}

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

package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/persona"
)

func TestPersonaAdapterScoreSnapshotParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"curiosity\": 0.8, \"empathy\": 0.6}"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	a := llm.NewPersonaAdapter(llm.New(llm.Config{Endpoint: srv.URL}))
	scores, err := a.ScoreSnapshot(context.Background(), []string{"curiosity", "empathy"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.8, scores["curiosity"])
	assert.Equal(t, 0.6, scores["empathy"])
}

func TestPersonaAdapterSynthesizeParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"narrative\": \"growing bolder\", \"confidence\": 0.7}"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	a := llm.NewPersonaAdapter(llm.New(llm.Config{Endpoint: srv.URL}))
	traj, err := a.Synthesize(context.Background(), []persona.Snapshot{{Dimensions: map[string]float64{"curiosity": 0.5}}})
	require.NoError(t, err)
	assert.Equal(t, "growing bolder", traj.Narrative)
	assert.Equal(t, 0.7, traj.Confidence)
}

func TestPersonaAdapterErrorsWithNoClient(t *testing.T) {
	a := &llm.PersonaAdapter{}
	_, err := a.ScoreSnapshot(context.Background(), nil, nil)
	assert.Error(t, err)
	_, err = a.Synthesize(context.Background(), nil)
	assert.Error(t, err)
}

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

package scheduler_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercore/ember/pkg/llm"
	"github.com/embercore/ember/pkg/orientation"
	"github.com/embercore/ember/pkg/scheduler"
)

func TestLLMJournalDrafterParsesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "{\"skip\": false, \"mood\": \"content\", \"narrative\": \"a quiet day\", \"related_concerns\": [\"c1\"]}"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	d := scheduler.NewLLMJournalDrafter(llm.New(llm.Config{Endpoint: srv.URL}))
	draft, err := d.Draft(context.Background(), orientation.Orientation{Mode: orientation.LightWork}, nil, nil, nil)
	require.NoError(t, err)
	assert.False(t, draft.Skip)
	assert.Equal(t, "a quiet day", draft.Narrative)
	assert.Equal(t, []string{"c1"}, draft.RelatedConcerns)
}

func TestLLMJournalDrafterSkipsOnUnparseableResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "nothing worth writing"}, "finish_reason": "stop"}]}`))
	}))
	defer srv.Close()

	d := scheduler.NewLLMJournalDrafter(llm.New(llm.Config{Endpoint: srv.URL}))
	draft, err := d.Draft(context.Background(), orientation.Orientation{}, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, draft.Skip)
}

func TestLLMJournalDrafterErrorsWithNoClient(t *testing.T) {
	d := &scheduler.LLMJournalDrafter{}
	draft, err := d.Draft(context.Background(), orientation.Orientation{}, nil, nil, nil)
	assert.Error(t, err)
	assert.True(t, draft.Skip)
}

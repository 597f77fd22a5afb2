package prob_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sre-norns/uiprobe/pkg/prob"
	"github.com/sre-norns/wyrd/pkg/manifest"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testSpec struct {
	Target string `json:"target" yaml:"target"`
	Clicks int    `json:"clicks" yaml:"clicks"`
}

func TestManifestMarshaling_JSON(t *testing.T) {
	testCases := map[string]struct {
		given  prob.Manifest
		expect string
	}{
		"nothing": {
			given:  prob.Manifest{},
			expect: `{}`,
		},
		"min-spec": {
			given: prob.Manifest{
				Spec: &testSpec{Target: "http://localhost:3000", Clicks: 2},
			},
			expect: `{"spec":{"target":"http://localhost:3000","clicks":2}}`,
		},
		"basic": {
			given: prob.Manifest{
				Kind: manifest.Kind("testSpec"),
				Spec: &testSpec{Target: "http://app", Clicks: 1},
			},
			expect: `{"kind":"testSpec","spec":{"target":"http://app","clicks":1}}`,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			got, err := json.Marshal(test.given)
			require.NoError(t, err)
			require.Equal(t, test.expect, string(got))
		})
	}
}

func TestManifestUnmarshaling_JSON(t *testing.T) {
	testKind := manifest.Kind("testSpec")
	require.NoError(t, prob.RegisterKind(testKind, &testSpec{}))
	defer prob.UnregisterKind(testKind)

	testCases := map[string]struct {
		given       string
		expect      prob.Manifest
		expectError bool
	}{
		"nothing-object": {
			given:  `{}`,
			expect: prob.Manifest{},
		},
		"unknown-kind": {
			given: `{"kind":"unknownSpec","spec":{"field":"xyz"}}`,
			expect: prob.Manifest{
				Kind: manifest.Kind("unknownSpec"),
				Spec: map[string]any{"field": "xyz"},
			},
		},
		"basic": {
			given: `{"kind":"testSpec","timeout":1000000000,"spec":{"target":"http://app","clicks":3}}`,
			expect: prob.Manifest{
				Kind:    testKind,
				Timeout: time.Second,
				Spec:    &testSpec{Target: "http://app", Clicks: 3},
			},
		},
		"invalid-spec": {
			expectError: true,
			given:       `{"kind":"testSpec","spec":{"script":"meaning"}}`,
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			var got prob.Manifest
			err := json.Unmarshal([]byte(test.given), &got)
			if test.expectError {
				require.Error(t, err, "expected error")
				return
			}

			require.NoError(t, err)
			require.Equal(t, test.expect, got)
		})
	}
}

func TestManifestUnmarshaling_YAML(t *testing.T) {
	testKind := manifest.Kind("testSpec")
	require.NoError(t, prob.RegisterKind(testKind, &testSpec{}))
	defer prob.UnregisterKind(testKind)

	testCases := map[string]struct {
		given  string
		expect prob.Manifest
	}{
		"kind-only": {
			given:  "kind: unknownSpec\n",
			expect: prob.Manifest{Kind: manifest.Kind("unknownSpec")},
		},
		"known-kind-no-spec": {
			given:  "kind: testSpec\n",
			expect: prob.Manifest{Kind: testKind},
		},
		"unknown-kind": {
			given: "kind: unknownSpec\nspec:\n  field: xyz\n",
			expect: prob.Manifest{
				Kind: manifest.Kind("unknownSpec"),
				Spec: map[string]any{"field": "xyz"},
			},
		},
		"basic": {
			given: "kind: testSpec\ntimeout: 30s\nspec:\n  target: http://app\n  clicks: 2\n",
			expect: prob.Manifest{
				Kind:    testKind,
				Timeout: 30 * time.Second,
				Spec:    &testSpec{Target: "http://app", Clicks: 2},
			},
		},
	}

	for name, tc := range testCases {
		test := tc
		t.Run(name, func(t *testing.T) {
			var got prob.Manifest
			require.NoError(t, yaml.Unmarshal([]byte(test.given), &got))
			require.Equal(t, test.expect, got)
		})
	}
}

func TestRegisterProbKind(t *testing.T) {
	kind := manifest.Kind("noop")

	require.ErrorIs(t, prob.RegisterProbKind(kind, &testSpec{}, prob.ProbRegistration{}), prob.ErrNilRunner)

	_, ok := prob.FindRunFunc(kind)
	require.False(t, ok)

	require.NoError(t, prob.RegisterProbKind(kind, &testSpec{}, prob.ProbRegistration{
		RunFunc: func(ctx context.Context, spec any, config prob.RunOptions, registry *prometheus.Registry, logger log.Logger) (prob.RunStatus, []prob.Artifact, error) {
			return prob.RunFinishedSuccess, nil, nil
		},
		Version: "v0.0.1",
	}))
	defer prob.UnregisterProbKind(kind)

	run, ok := prob.FindRunFunc(kind)
	require.True(t, ok)

	status, _, err := run(context.Background(), nil, prob.RunOptions{}, nil, log.NewNopLogger())
	require.NoError(t, err)
	require.Equal(t, prob.RunFinishedSuccess, status)

	require.Contains(t, prob.ListProbs(), kind)
}

func TestRegisterKind(t *testing.T) {
	var nilSpec *testSpec

	testCases := map[string]struct {
		kind   prob.Kind
		proto  any
		expect error
	}{
		"pointer":     {kind: "ptrSpec", proto: &testSpec{}},
		"value":       {kind: "valSpec", proto: testSpec{}},
		"nil":         {kind: "nilSpec", proto: nil, expect: prob.ErrNilProto},
		"nil-pointer": {kind: "nilPtrSpec", proto: nilSpec, expect: prob.ErrNilProto},
		"no-kind":     {kind: "", proto: &testSpec{}, expect: prob.ErrNoKind},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			err := prob.RegisterKind(tc.kind, tc.proto)
			defer prob.UnregisterKind(tc.kind)

			if tc.expect != nil {
				require.ErrorIs(t, err, tc.expect)
				_, err := prob.InstanceOf(tc.kind)
				require.ErrorIs(t, err, manifest.ErrUnknownKind)
				return
			}

			require.NoError(t, err)
			instance, err := prob.InstanceOf(tc.kind)
			require.NoError(t, err)
			require.IsType(t, &testSpec{}, instance.Spec)
		})
	}
}

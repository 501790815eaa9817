package jobresult

import (
	"encoding/json"
	"testing"

	"github.com/aceteam-ai/mediaworker-sdk/param"
)

func TestStatusOnlyMovesForward(t *testing.T) {
	r := New(1).WithStatus(StatusCompleted)
	if r.Status() != StatusCompleted {
		t.Fatalf("status = %v, want completed", r.Status())
	}
	r = r.WithStatus(StatusUnknown)
	if r.Status() != StatusCompleted {
		t.Fatalf("status regressed to %v after WithStatus(Unknown)", r.Status())
	}
}

func TestWithParametersMergeByID(t *testing.T) {
	r := New(1)
	r = r.WithParameters(mustParam("a", `"1"`))
	r = r.WithParameters(mustParam("a", `"2"`), mustParam("b", `"3"`))
	if len(r.Parameters()) != 2 {
		t.Fatalf("expected 2 parameters, got %d", len(r.Parameters()))
	}
	var v string
	json.Unmarshal(r.Parameters()[0].Value, &v)
	if v != "2" {
		t.Fatalf("later parameter did not win: got %q", v)
	}
}

func TestDestinationPaths(t *testing.T) {
	r := New(1).WithDestinationPaths("/path/out.mxf")
	paths := r.GetDestinationPaths()
	if len(paths) != 1 || paths[0] != "/path/out.mxf" {
		t.Fatalf("destination paths = %v", paths)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	r := New(123).WithStatus(StatusCompleted).WithParameters(mustParam("k", `"v"`)).Seal()
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var r2 JobResult
	if err := json.Unmarshal(data, &r2); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r2.JobID() != r.JobID() || r2.Status() != r.Status() || len(r2.Parameters()) != len(r.Parameters()) {
		t.Fatalf("round trip mismatch: %+v vs %+v", r, &r2)
	}
}

func mustParam(id, rawValue string) param.Parameter {
	return param.Parameter{ID: id, Kinds: []param.Kind{param.KindString}, Value: json.RawMessage(rawValue)}
}

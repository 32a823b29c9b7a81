package tools

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

type recordingExecutor struct {
	binary string
	args   []string
	err    error
}

func (r *recordingExecutor) Run(ctx context.Context, binary string, args []string) error {
	r.binary = binary
	r.args = args
	return r.err
}

func TestOsmiumFilter(t *testing.T) {
	exec := &recordingExecutor{}
	o, err := NewOsmium("/usr/local/bin/osmium", []string{"railway=rail,halt,station,stop", "route=train"}, exec)
	if err != nil {
		t.Fatalf("NewOsmium() failed: %v", err)
	}

	if err := o.Filter(context.Background(), "in.osm.pbf", "out.filtered.osm.pbf"); err != nil {
		t.Fatalf("Filter() failed: %v", err)
	}

	want := []string{"tags-filter", "in.osm.pbf", "railway=rail,halt,station,stop", "route=train", "-o", "out.filtered.osm.pbf", "--overwrite"}
	if exec.binary != "/usr/local/bin/osmium" {
		t.Errorf("binary = %q, want /usr/local/bin/osmium", exec.binary)
	}
	if !reflect.DeepEqual(exec.args, want) {
		t.Errorf("args = %q, want %q", exec.args, want)
	}
}

func TestNewOsmium_Validation(t *testing.T) {
	if _, err := NewOsmium(" ", []string{"a=b"}, nil); err == nil {
		t.Error("NewOsmium() accepted an empty binary")
	}
	if _, err := NewOsmium("osmium", nil, nil); err == nil {
		t.Error("NewOsmium() accepted empty criteria")
	}
}

func TestConverterConvert(t *testing.T) {
	exec := &recordingExecutor{err: errors.New("exit status 3")}
	c, err := NewConverter("java", "osm-tickettoride.jar", exec)
	if err != nil {
		t.Fatalf("NewConverter() failed: %v", err)
	}

	err = c.Convert(context.Background(), "a.filtered.osm.pbf", "a.map")
	if err == nil || err.Error() != "exit status 3" {
		t.Errorf("Convert() error = %v, want executor error", err)
	}

	want := []string{"-jar", "osm-tickettoride.jar", "--in=a.filtered.osm.pbf", "--out=a.map"}
	if exec.binary != "java" || !reflect.DeepEqual(exec.args, want) {
		t.Errorf("ran %q %q, want java %q", exec.binary, exec.args, want)
	}
}

func TestCommandExecutor(t *testing.T) {
	e := CommandExecutor{}
	if err := e.Run(context.Background(), "sh", []string{"-c", "echo ok; echo warn >&2"}); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if err := e.Run(context.Background(), "sh", []string{"-c", "exit 2"}); err == nil {
		t.Error("Run() error = nil for non-zero exit")
	}
	if err := e.Run(context.Background(), "/nonexistent/tool", nil); err == nil {
		t.Error("Run() error = nil for a missing binary")
	}
}

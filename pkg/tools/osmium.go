package tools

import (
	"context"
	"errors"
	"strings"
)

// Osmium filters an extract down to records matching tag expressions
// using `osmium tags-filter`.
type Osmium struct {
	Binary   string
	Criteria []string
	Exec     Executor
}

// NewOsmium builds a filter; criteria are passed through verbatim.
func NewOsmium(binary string, criteria []string, exec Executor) (*Osmium, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("osmium binary required")
	}
	if len(criteria) == 0 {
		return nil, errors.New("at least one filter expression required")
	}
	if exec == nil {
		exec = CommandExecutor{}
	}
	return &Osmium{Binary: binary, Criteria: criteria, Exec: exec}, nil
}

// Args returns the command line for filtering input into output.
func (o *Osmium) Args(input, output string) []string {
	args := make([]string, 0, len(o.Criteria)+6)
	args = append(args, "tags-filter", input)
	args = append(args, o.Criteria...)
	args = append(args, "-o", output, "--overwrite")
	return args
}

func (o *Osmium) Filter(ctx context.Context, input, output string) error {
	return o.Exec.Run(ctx, o.Binary, o.Args(input, output))
}

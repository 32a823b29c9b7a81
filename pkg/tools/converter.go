package tools

import (
	"context"
	"errors"
	"strings"
)

// Converter turns a filtered extract into a map file by running a jar.
type Converter struct {
	Java string
	Jar  string
	Exec Executor
}

func NewConverter(java, jar string, exec Executor) (*Converter, error) {
	java, jar = strings.TrimSpace(java), strings.TrimSpace(jar)
	if java == "" || jar == "" {
		return nil, errors.New("java binary and converter jar required")
	}
	if exec == nil {
		exec = CommandExecutor{}
	}
	return &Converter{Java: java, Jar: jar, Exec: exec}, nil
}

func (c *Converter) Args(input, output string) []string {
	return []string{"-jar", c.Jar, "--in=" + input, "--out=" + output}
}

func (c *Converter) Convert(ctx context.Context, input, output string) error {
	return c.Exec.Run(ctx, c.Java, c.Args(input, output))
}

package errutil

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"

	"github.com/samber/lo"
	"github.com/xeptore/flaw/v8"
	"gopkg.in/yaml.v3"
)

// HTTPResponseFlawPayload describes a response and the request behind it.
// Query strings are dropped as signed media URLs carry credentials there.
func HTTPResponseFlawPayload(res *http.Response) flaw.P {
	out := flaw.P{
		"status":         res.Status,
		"status_code":    res.StatusCode,
		"content_length": res.ContentLength,
		"proto":          res.Proto,
		"headers":        flaw.P(lo.MapValues(res.Header, func(v []string, _ string) any { return v })),
	}
	if req := res.Request; nil != req {
		u := *req.URL
		u.RawQuery = ""
		out["request"] = flaw.P{
			"method": req.Method,
			"url":    u.String(),
			"range":  req.Header.Get("Range"),
		}
	}
	return out
}

// ProcessFlawPayload describes a failed external command.
func ProcessFlawPayload(cmd *exec.Cmd, stderr string, err error) flaw.P {
	return flaw.P{
		"cmd":            cmd.String(),
		"exit_code":      ExitCode(err),
		"stderr":         strings.TrimSpace(stderr),
		"err_debug_tree": Tree(err).FlawP(),
	}
}

type flawReport struct {
	Inner        string        `yaml:"inner"`
	Records      []record      `yaml:"records"`
	JoinedErrors []joinedError `yaml:"joined_errors,omitempty"`
	StackTrace   []frame       `yaml:"stack_trace"`
}

type record struct {
	Function string `yaml:"function"`
	Payload  flaw.P `yaml:"payload"`
}

type joinedError struct {
	Message string `yaml:"message"`
	Caller  *frame `yaml:"caller,omitempty"`
}

type frame struct {
	File     string `yaml:"file"`
	Line     int    `yaml:"line"`
	Function string `yaml:"function"`
}

// FlawToYAML renders f as the YAML document written by --flaw-report.
func FlawToYAML(f *flaw.Flaw) ([]byte, error) {
	report := flawReport{
		Inner:        f.Inner,
		Records:      make([]record, 0, len(f.Records)),
		JoinedErrors: make([]joinedError, 0, len(f.JoinedErrors)),
		StackTrace:   make([]frame, 0, len(f.StackTrace)),
	}
	for _, r := range f.Records {
		report.Records = append(report.Records, record{Function: r.Function, Payload: r.Payload})
	}
	for _, j := range f.JoinedErrors {
		out := joinedError{Message: j.Message, Caller: nil}
		if st := j.CallerStackTrace; nil != st {
			out.Caller = &frame{File: st.File, Line: st.Line, Function: st.Function}
		}
		report.JoinedErrors = append(report.JoinedErrors, out)
	}
	for _, s := range f.StackTrace {
		report.StackTrace = append(report.StackTrace, frame{File: s.File, Line: s.Line, Function: s.Function})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(report); nil != err {
		flawP := flaw.P{"err_debug_tree": Tree(err).FlawP()}
		return nil, flaw.From(fmt.Errorf("failed to encode flaw report: %v", err)).Append(flawP)
	}
	return buf.Bytes(), nil
}

// IsFlaw reports whether err already carries flaw records, in which case it
// is returned upward as-is instead of being wrapped again.
func IsFlaw(err error) bool {
	var f *flaw.Flaw
	return errors.As(err, &f)
}

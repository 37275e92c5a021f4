package log

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"
)

// Flaw logs err with its records, joined errors and stack when it is a
// flaw, and as a plain error field otherwise.
func Flaw(err error) func(e *zerolog.Event) {
	return func(e *zerolog.Event) {
		var f *flaw.Flaw
		if !errors.As(err, &f) {
			e.Err(err)
			return
		}

		e.Dict("error", errorDict(f.Inner, f.InnerType, f.InnerSyntaxRepr))

		records := zerolog.Arr()
		for _, r := range f.Records {
			records.Dict(recordDict(r.Function, r.Payload))
		}
		e.Array("records", records)

		joined := zerolog.Arr()
		for _, j := range f.JoinedErrors {
			d := zerolog.Dict().Dict("error", errorDict(j.Message, j.TypeName, j.SyntaxRepr))
			if st := j.CallerStackTrace; nil != st {
				d.Dict("caller_stack_trace", frameDict(st.File, st.Line, st.Function))
			}
			joined.Dict(d)
		}
		e.Array("joined_errors", joined)

		frames := zerolog.Arr()
		for _, st := range f.StackTrace {
			frames.Dict(frameDict(st.File, st.Line, st.Function))
		}
		e.Array("stack_traces", frames)
	}
}

func errorDict(message, typeName, repr string) *zerolog.Event {
	return zerolog.Dict().
		Str("message", message).
		Str("type_name", typeName).
		Str("syntax_representation", repr)
}

func recordDict(function string, payload map[string]any) *zerolog.Event {
	d := zerolog.Dict().Str("function", function)
	b, err := json.MarshalWithOption(payload, json.UnorderedMap(), json.DisableNormalizeUTF8(), json.DisableHTMLEscape())
	if nil != err {
		return d.Dict("payload", zerolog.Dict().Str("error", err.Error()).Str("raw", fmt.Sprintf("%#+v", payload)))
	}
	return d.RawJSON("payload", b)
}

func frameDict(file string, line int, function string) *zerolog.Event {
	return zerolog.Dict().
		Str("location", fmt.Sprintf("%s:%d", file, line)).
		Str("function", function)
}

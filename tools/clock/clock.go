// Package clock provides the get_time tool.
package clock

import (
	"context"
	"time"
	_ "time/tzdata"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/tools"
)

const ToolName = "get_time"

// Request is the tool input.
type Request struct {
	Timezone string `json:"timezone,omitempty" yaml:"Timezone,omitempty" jsonschema:"title=Timezone,description=IANA time zone name such as Europe/Paris. UTC when omitted."`
}

// Result is the tool output.
type Result struct {
	Time     string `json:"time" yaml:"Time"`
	Timezone string `json:"timezone" yaml:"Timezone"`
}

func (r *Result) String() string {
	return r.Time + " " + r.Timezone
}

// NowFunc returns the current time, replaced in tests.
type NowFunc func() time.Time

// New returns the get_time tool.
func New(now NowFunc) (*tools.Func[Request, Result], error) {
	if now == nil {
		now = time.Now
	}
	return tools.NewFunc(ToolName,
		"Returns the current date and time, optionally in the given time zone.",
		func(_ context.Context, req *Request) (*Result, error) {
			name := req.Timezone
			if name == "" {
				name = "UTC"
			}
			loc, err := time.LoadLocation(name)
			if err != nil {
				return nil, errors.Errorf("unknown time zone %q", req.Timezone)
			}
			return &Result{
				Time:     now().In(loc).Format(time.RFC3339),
				Timezone: loc.String(),
			}, nil
		},
		tools.WithReadOnly(),
	)
}

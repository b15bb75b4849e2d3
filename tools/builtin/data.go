package builtin

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/x/slices"
)

// ProcessDataInput is the input of the process_data tool.
type ProcessDataInput struct {
	URI string `json:"uri" jsonschema:"description=The URI of the resource to process" validate:"required"`
}

// sampleLimit bounds the resource text sent to the model.
const sampleLimit = 500

// ProcessData reads a resource through the channel and asks the model
// attached to the dispatcher to summarize it.
func ProcessData(ctx context.Context, in *ProcessDataInput, ch tools.Channel) (string, error) {
	if ch == nil {
		return "", errors.New("process_data requires a channel")
	}
	ch.Emit(tools.LevelInfo, fmt.Sprintf("Processing %s...", in.URI))

	c, err := ch.Read(ctx, in.URI)
	if err != nil {
		return "", err
	}
	summary, err := ch.Sample(ctx, "Summarize: "+slices.StringUpto(c.Text(), sampleLimit))
	if err != nil {
		return "", errors.WithMessagef(err, "unable to summarize %s", in.URI)
	}
	return summary, nil
}

func readVersion(context.Context, resources.Bindings) (string, error) {
	return Version, nil
}

func readProfile(_ context.Context, b resources.Bindings) (any, error) {
	return map[string]string{
		"name":   "User " + b["user_id"],
		"status": "active",
	}, nil
}

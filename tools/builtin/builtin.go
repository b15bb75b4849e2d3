// Package builtin provides the demo catalog: arithmetic, unit conversion,
// weather and sentiment tools, the version and user profile resources,
// and the greeting prompts.
package builtin

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/prompts"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow/tools", "builtin")

// Version is served by the config://version resource.
const Version = "2.0.1"

// Tools returns the builtin tool descriptors.
func Tools() []tools.Descriptor {
	return []tools.Descriptor{
		tools.MustTypedTool("calculate", "Perform basic arithmetic operations", Calculate, tools.WithStrict()),
		tools.MustTypedTool("convert_units", "Convert values between different units of measurement", ConvertUnits, tools.WithStrict()),
		tools.MustTypedTool("get_weather", "Get the weather in a given location", GetWeather),
		tools.MustTypedTool("get_weather_report", "Retrieves the current weather report for a specified city", GetWeatherReport),
		tools.MustTypedTool("analyze_sentiment", "Analyzes the sentiment of a user's reaction", AnalyzeSentiment),
		tools.MustTypedTool("calculate_sum", "Calculate the sum of two integers", CalculateSum),
		tools.MustTypedTool("calculate_difference", "Calculate the difference between two integers", CalculateDifference),
		tools.MustTypedTool("calculate_product", "Calculate the product of two integers", CalculateProduct),
		tools.MustTypedTool("calculate_quotient", "Calculate the quotient of two integers", CalculateQuotient),
		tools.MustTypedTool("process_data", "Read a resource by URI and summarize its content", ProcessData),
	}
}

// Resources returns the builtin resource descriptors.
func Resources() []resources.Descriptor {
	return []resources.Descriptor{
		{
			URI:         "config://version",
			Name:        "version",
			Description: "The server version",
			MIMEType:    "text/plain",
			Read:        resources.Text(readVersion),
		},
		{
			URI:         "users://{user_id}/profile",
			Name:        "user_profile",
			Description: "The profile of a user",
			MIMEType:    "application/json",
			Read:        resources.JSON(readProfile),
		},
	}
}

// Prompts returns the builtin prompts.
func Prompts() []prompts.Prompt {
	return []prompts.Prompt{
		{
			Name:        "greet_user",
			Description: "Generate a greeting message for the user",
			Arguments: []prompts.Argument{
				{Name: "name", Description: "The name of the user", Required: true},
			},
			Template: prompts.NewChatTemplate(
				prompts.MustMessageTemplate(llms.RoleHuman, "Welcome to the toolflow server, {{ .name }}!"),
			),
		},
		{
			Name:        "calculate_sum",
			Description: "Ask for the sum of two integers",
			Arguments: []prompts.Argument{
				{Name: "a", Required: true},
				{Name: "b", Required: true},
			},
			Template: prompts.NewChatTemplate(
				prompts.MustMessageTemplate(llms.RoleHuman, "What is the sum of {{ .a }} and {{ .b }}? Use the calculate_sum tool."),
			),
		},
	}
}

// Register adds the builtin catalog. Any of the targets may be nil.
func Register(reg *tools.Registry, resolver *resources.Resolver, catalog *prompts.Catalog) error {
	if reg != nil {
		if err := reg.Register(Tools()...); err != nil {
			return errors.WithMessage(err, "failed to register builtin tools")
		}
	}
	if resolver != nil {
		if err := resolver.Register(Resources()...); err != nil {
			return errors.WithMessage(err, "failed to register builtin resources")
		}
	}
	if catalog != nil {
		if err := catalog.Register(Prompts()...); err != nil {
			return errors.WithMessage(err, "failed to register builtin prompts")
		}
	}
	return nil
}

package main

import (
	"fmt"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/config"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/toolflow/pkg/llmfactory"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/toolflow/pkg/prompts"
	"github.com/effective-security/toolflow/resources"
	"github.com/effective-security/toolflow/tools"
	"github.com/effective-security/toolflow/tools/builtin"
	"github.com/effective-security/toolflow/tools/websearch"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "cmd")

// newModel returns the model used by chat.
var newModel = func(cfg *config.Configuration, name string) (llms.Model, error) {
	f := llmfactory.New(&cfg.LLM)
	if name != "" {
		return f.ModelByName(name)
	}
	return f.AssistantModel("default")
}

type app struct {
	configFile string
	verbose    bool
	cfg        *config.Configuration
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "toolflow",
		Short:        "Tool-calling conversations with LLMs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			xlog.SetFormatter(xlog.NewStringFormatter(cmd.ErrOrStderr()))
			if a.verbose {
				xlog.SetGlobalLogLevel(xlog.DEBUG)
			} else {
				xlog.SetGlobalLogLevel(xlog.WARNING)
			}

			cfg, err := config.Load(a.configFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("toolflow version %s\n", version))

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", os.Getenv("TOOLFLOW_CONFIG"), "path to the configuration file")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		newChatCmd(a),
		newToolsCmd(a),
		newResourceCmd(a),
		newServeCmd(a),
	)
	return root
}

// catalog is the set of tools, resources and prompts served by the CLI.
type catalog struct {
	dispatcher *dispatcher.Dispatcher
	prompts    *prompts.Catalog
}

// buildCatalog registers the builtin catalog, and web_search when a
// Tavily key is configured.
func (a *app) buildCatalog(opts ...dispatcher.Option) (*catalog, error) {
	reg := tools.NewRegistry()
	res := resources.NewResolver()
	cat := prompts.NewCatalog()

	if err := builtin.Register(reg, res, cat); err != nil {
		return nil, err
	}
	if key := a.cfg.Tavily.APIKey; key != "" {
		search, err := websearch.New(key)
		if err != nil {
			return nil, err
		}
		d, err := search.Descriptor()
		if err != nil {
			return nil, err
		}
		if err := reg.Register(d); err != nil {
			return nil, errors.WithMessage(err, "failed to register web_search")
		}
	}

	logger.KV(xlog.DEBUG, "tools", reg.Names())

	opts = append(a.cfg.Dispatcher.Options(), opts...)
	return &catalog{
		dispatcher: dispatcher.New(reg, res, opts...),
		prompts:    cat,
	}, nil
}

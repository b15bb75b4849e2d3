package main

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/assistants"
	"github.com/effective-security/toolflow/callbacks"
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/dispatcher"
	"github.com/effective-security/x/values"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

type chatFlags struct {
	model   string
	chatID  string
	tenant  string
	resume  bool
	trace   bool
	history bool
}

func newChatCmd(a *app) *cobra.Command {
	f := &chatFlags{}
	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Run one conversation with the builtin tools",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runChat(cmd, f, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&f.model, "model", "", "model name, defaults to the assistant model")
	cmd.Flags().StringVar(&f.chatID, "chat-id", "", "chat ID used with a configured store")
	cmd.Flags().StringVar(&f.tenant, "tenant", "cli", "tenant ID used with a configured store")
	cmd.Flags().BoolVar(&f.resume, "resume", false, "continue the stored conversation of --chat-id")
	cmd.Flags().BoolVar(&f.trace, "trace", false, "print model turns and tool calls")
	cmd.Flags().BoolVar(&f.history, "history", false, "print the conversation history as YAML")
	return cmd
}

func (a *app) runChat(cmd *cobra.Command, f *chatFlags, input string) error {
	if f.resume && f.chatID == "" {
		return errors.New("--resume requires --chat-id")
	}

	ctx := cmd.Context()
	model, err := newModel(a.cfg, f.model)
	if err != nil {
		return errors.WithMessage(err, "failed to create model")
	}

	c, err := a.buildCatalog(dispatcher.WithSampler(model))
	if err != nil {
		return err
	}

	opts := a.cfg.LoopOptions()
	if f.trace {
		opts = append(opts, assistants.WithCallback(callbacks.NewPrinter(cmd.ErrOrStderr(), callbacks.ModeDefault)))
	}

	s, closer, err := a.cfg.Store.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = closer() }()
	if s != nil {
		opts = append(opts, assistants.WithStore(s), assistants.WithResume(f.resume))
	}

	chatID := values.StringsCoalesce(f.chatID, chatmodel.NewChatID())
	ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(f.tenant, chatID, nil))

	assistant := assistants.NewAssistant(model, c.dispatcher, opts...).
		WithName("toolflow").
		WithDescription("Answers using the builtin tools")

	res, err := assistant.Call(ctx, input)
	if f.history && res != nil {
		out, merr := yaml.Marshal(res.History)
		if merr != nil {
			return errors.WithMessage(merr, "failed to encode history")
		}
		_, _ = cmd.OutOrStdout().Write(out)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), res.Text)
	if s != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "chat: %s\n", chatID)
	}
	return nil
}

// File: cmd/chat.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/internal/chat"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

type chatOptions struct {
	wallet  string
	animate bool
	confirm bool
}

func newChatCmd(provider upstreamProvider) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat <handle> <message...>",
		Short: "Send one message to an agent and print the reply",
		Long: `Submits a message as the given wallet and waits for the agent's reply. When the
agent asks to confirm a token deployment, --confirm answers yes; otherwise the
request is cancelled.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			return runChat(ctx, cmd.OutOrStdout(), observability.GetLogger(), cfg, args[0], text, opts, provider)
		},
	}

	cmd.Flags().StringVar(&opts.wallet, "wallet", "", "Wallet address the message is sent as.")
	cmd.Flags().BoolVar(&opts.animate, "animate", false, "Reveal the reply with the typewriter effect.")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "Confirm a token deployment if the agent asks.")
	return cmd
}

func runChat(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, handle, text string, opts chatOptions, provider upstreamProvider) error {
	up, err := provider(cfg, logger)
	if err != nil {
		return err
	}
	agent, err := up.GetAgent(ctx, handle)
	if err != nil {
		return fmt.Errorf("failed to load agent %q: %w", handle, err)
	}

	o := chat.NewOrchestrator(chat.Params{
		Handle:      handle,
		AgentID:     agent.ID,
		AgentName:   agent.Name,
		UserAddress: opts.wallet,
	}, up, cfg.Chat(), logger)

	reply, err := o.Send(ctx, text)
	if errors.Is(err, chat.ErrEmptyMessage) {
		return err
	}
	printReply(ctx, out, cfg, reply, opts.animate)

	if reply.Modal != nil && reply.Modal.Kind == chat.ModalConfirmDeploy {
		next := o.CancelDeploy
		if opts.confirm {
			next = o.ConfirmDeploy
		}
		reply, err = next(ctx)
		printReply(ctx, out, cfg, reply, opts.animate)
	}
	if err != nil {
		return fmt.Errorf("chat did not complete: %w", err)
	}
	if reply.Modal != nil && reply.Modal.Kind == chat.ModalTokenCreated {
		for _, l := range reply.Modal.Links {
			fmt.Fprintf(out, "  %s: %s\n", l.Label, l.URL)
		}
	}
	return nil
}

func printReply(ctx context.Context, out io.Writer, cfg config.Interface, reply chat.Reply, animate bool) {
	content := reply.Message.Content
	if content == "" {
		return
	}
	if !animate || !reply.Message.ShouldAnimate {
		fmt.Fprintln(out, content)
		return
	}
	var shown string
	for prefix := range chat.Typewriter(ctx, content, cfg.Chat().TypewriterSpeed) {
		fmt.Fprint(out, strings.TrimPrefix(prefix, shown))
		shown = prefix
	}
	fmt.Fprintln(out)
}

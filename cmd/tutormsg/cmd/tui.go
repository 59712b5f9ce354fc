package cmd

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/studyhall/tutormsg/internal/engine"
	"github.com/studyhall/tutormsg/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the interactive messaging widget",
	Long: `Open the messaging widget in the terminal.

The left pane lists your conversations with unread counts; the right
pane shows the selected thread and follows new messages while you are
near the bottom. A banner appears when messages arrive after you open
a conversation.

Navigation:
  ↑/k, ↓/j    Move through conversations
  Enter       Open conversation / send message
  Tab         Switch between list and compose
  PgUp/PgDn   Scroll messages
  G           Jump to newest message
  Esc         Dismiss banner / leave compose
  q           Quit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := buildEngine()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		eng.Open(ctx)
		defer eng.Close()

		poller := engine.NewPoller(cfg.PollInterval(), eng.RunCycle).WithLogger(logger)
		if err := poller.Start(); err != nil {
			return fmt.Errorf("start poller: %w", err)
		}
		defer func() { <-poller.Stop().Done() }()

		model := tui.New(eng, tui.Options{Version: Version})
		p := tea.NewProgram(model, tea.WithAltScreen())

		eng.OnUpdate(func() {
			p.Send(tui.EngineUpdated())
		})

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run tui: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-chat/backend/internal/service/ai"
	"github.com/zhouzirui/z-chat/backend/internal/service/chat"
	"github.com/zhouzirui/z-chat/backend/pkg/logger"
)

var (
	delay    time.Duration
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "chatrepl",
	Short: "Chat with the echo backend from a terminal",
	Long: `chatrepl drives the chat controller in-process.

Commands:
  /new          start a new chat
  /list         show chats, newest first
  /select N     switch to chat N from /list
  /delete N     delete chat N from /list
  /quit         exit

Any other line is sent as a message to the active chat.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		zl, err := logger.New(logLevel, "console")
		if err != nil {
			return err
		}
		defer zl.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ctrl := chat.NewController(chat.NewStore(), ai.NewEchoEmitter(delay, zl), zl)
		return newREPL(ctrl, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
	},
}

func init() {
	rootCmd.Flags().DurationVar(&delay, "delay", ai.DefaultDelay, "pause before each reply fragment")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "warn", "zap log level")
}

func main() {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("no .env file loaded", zap.Error(err))
	}

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

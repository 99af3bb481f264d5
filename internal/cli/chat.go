package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/destekhq/runtime/internal/adminclient"
	"github.com/destekhq/runtime/internal/chat"
	"github.com/destekhq/runtime/internal/config"
)

func newChatCommand() *cobra.Command {
	var (
		message    string
		sessionID  string
		timeoutSec int
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the support bot over the runtime API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			client := adminclient.New(cfg.APIBaseURL, time.Duration(timeoutSec)*time.Second)

			if sessionID == "" {
				sessionID = "cli:" + uuid.NewString()
			}

			text := strings.TrimSpace(message)
			if text == "" && len(args) > 0 {
				text = strings.TrimSpace(strings.Join(args, " "))
			}
			if text != "" {
				return sendOnce(cmd, client, sessionID, text, timeoutSec)
			}

			cmd.Printf("Connected as %s. Type /exit to quit.\n", sessionID)
			return runInteractiveChat(cmd, client, sessionID, timeoutSec)
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "single message to send (non-interactive mode)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id to continue (defaults to a fresh one)")
	cmd.Flags().IntVar(&timeoutSec, "timeout-sec", 30, "request timeout in seconds")
	return cmd
}

func sendOnce(cmd *cobra.Command, client *adminclient.Client, sessionID, text string, timeoutSec int) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	response, err := client.Chat(ctx, sessionID, []chat.Message{{Role: chat.RoleUser, Content: text}})
	if err != nil {
		return err
	}
	printResponse(cmd, response.Reply, response.QuickReplies, response.TicketID)
	return nil
}

func runInteractiveChat(cmd *cobra.Command, client *adminclient.Client, sessionID string, timeoutSec int) error {
	transcript := []chat.Message{}
	scanner := bufio.NewScanner(cmd.InOrStdin())

	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			return nil
		}

		transcript = append(transcript, chat.Message{Role: chat.RoleUser, Content: line})
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSec)*time.Second)
		response, err := client.Chat(ctx, sessionID, transcript)
		cancel()
		if err != nil {
			cmd.PrintErrf("error: %v\n", err)
			continue
		}
		if strings.TrimSpace(response.Reply) != "" {
			transcript = append(transcript, chat.Message{Role: chat.RoleAssistant, Content: response.Reply})
		}
		printResponse(cmd, response.Reply, response.QuickReplies, response.TicketID)
	}
}

func printResponse(cmd *cobra.Command, reply string, quickReplies []string, ticketID string) {
	if strings.TrimSpace(reply) == "" {
		cmd.Println("(no reply)")
		return
	}
	cmd.Println(reply)
	if len(quickReplies) > 0 {
		cmd.Println(fmt.Sprintf("[%s]", strings.Join(quickReplies, " | ")))
	}
	if ticketID != "" {
		cmd.Printf("(kayıt: %s)\n", ticketID)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	ripple "github.com/ripple-im/ripple-go"
	"github.com/spf13/cobra"
)

var (
	watchPresence string
	watchNoTyping bool
)

func init() {
	watchCmd.Flags().StringVar(&watchPresence, "presence", "", "publish this presence status while watching (online, away, busy)")
	watchCmd.Flags().BoolVar(&watchNoTyping, "no-typing", false, "suppress typing indicator output")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch <channel>",
	Short: "Stream live events from a channel",
	Long:  "Connect to the realtime endpoint, join a channel, and print messages, presence changes and typing indicators until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channelID := args[0]

		rt := getClient().Realtime()
		defer rt.Disconnect()

		rt.OnStatusChange(func(c ripple.StatusChange) {
			switch {
			case c.Err != nil:
				fmt.Printf("-- %s (attempt %d): %v\n", c.Status, c.Attempt, c.Err)
			case c.Attempt > 0:
				fmt.Printf("-- %s (attempt %d)\n", c.Status, c.Attempt)
			default:
				fmt.Printf("-- %s\n", c.Status)
			}
		})

		rt.Presence().OnCountChange(func(online int) {
			fmt.Printf("-- %d online\n", online)
		})

		var onTyping func(userID string, typing bool)
		if !watchNoTyping {
			onTyping = func(userID string, typing bool) {
				if typing {
					fmt.Printf("-- %s is typing...\n", userID)
				} else {
					fmt.Printf("-- %s stopped typing\n", userID)
				}
			}
		}

		sub := rt.SubscribeChannel(channelID, ripple.StreamHandlers{
			OnNew: func(msg *ripple.Message) {
				printMessage("", msg)
			},
			OnUpdated: func(msg *ripple.Message) {
				printMessage("(edited) ", msg)
			},
			OnDeleted: func(messageID string) {
				fmt.Printf("-- message %s deleted\n", messageID)
			},
		}, onTyping)
		defer sub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		if err := rt.JoinChannels(ctx, channelID); err != nil {
			return fmt.Errorf("join failed: %w", err)
		}
		if watchPresence != "" {
			if err := rt.UpdatePresence(ctx, ripple.PresenceStatus(watchPresence)); err != nil {
				return fmt.Errorf("presence update failed: %w", err)
			}
		}

		fmt.Printf("Watching #%s (Ctrl-C to stop)\n", channelID)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		fmt.Println("\nDisconnecting...")
		return nil
	},
}

func printMessage(prefix string, msg *ripple.Message) {
	sender := msg.SenderName
	if sender == "" {
		sender = msg.SenderID
	}
	fmt.Printf("[%s] %s%s: %s\n", msg.CreatedAt, prefix, sender, msg.Content)
	for _, att := range msg.Attachments {
		fmt.Printf("    attachment: %s (%s)\n", att.Name, att.URL)
	}
}

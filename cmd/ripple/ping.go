package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pingCount int

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 3, "number of probes to send")
	rootCmd.AddCommand(pingCmd)
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round-trip time to the realtime endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := getClient().Realtime()
		defer rt.Disconnect()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := rt.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}

		for i := 0; i < pingCount; i++ {
			start := time.Now()
			if _, err := rt.Ping(ctx); err != nil {
				fmt.Printf("probe %d: error: %v\n", i+1, err)
				continue
			}
			fmt.Printf("probe %d: %s\n", i+1, time.Since(start).Round(time.Millisecond))
			if i < pingCount-1 {
				time.Sleep(time.Second)
			}
		}
		return nil
	},
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cdpproxy/internal/cdpclient"
	"cdpproxy/internal/utility"
)

var watchCmd = &cobra.Command{
	Use:   "watch <domain>",
	Short: "Subscribe to CDP events from a running proxy and stream them",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var (
	watchSocket string
	watchTarget string
	watchFilter string
	watchCount  int
)

func init() {
	watchCmd.Flags().StringVarP(&watchSocket, "socket", "s", "", "Proxy UNIX socket path")
	_ = watchCmd.MarkFlagRequired("socket")
	watchCmd.Flags().StringVarP(&watchTarget, "target", "t", "", "Target ID, or 'browser' for browser-level events")
	watchCmd.Flags().StringVarP(&watchFilter, "filter", "f", "", "Event name prefix filter (e.g. Page.loadEventFired)")
	watchCmd.Flags().IntVarP(&watchCount, "count", "c", 0, "Exit after N events (0 = unlimited)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, args []string) error {
	domain := args[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	wsPath, err := resolveWsPath(ctx, watchSocket, watchTarget)
	if err != nil {
		return err
	}
	conn, err := cdpclient.Dial(watchSocket, wsPath, true)
	if err != nil {
		return utility.ErrRuntime("dialing proxy: %v", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Call(ctx, domain+".enable", nil); err != nil {
		return utility.ErrRuntime("enabling %s: %v", domain, err)
	}

	count := 0
	for {
		select {
		case event, ok := <-conn.Events:
			if !ok {
				return nil
			}
			if watchFilter != "" && !strings.HasPrefix(event.Method, watchFilter) {
				continue
			}
			out := map[string]any{"method": event.Method}
			if event.Params != nil {
				var params any
				if err := json.Unmarshal(event.Params, &params); err != nil {
					return err
				}
				out["params"] = params
			}
			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			count++
			if watchCount > 0 && count >= watchCount {
				return nil
			}
		case <-ctx.Done():
			return nil
		}
	}
}

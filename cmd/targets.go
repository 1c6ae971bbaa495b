package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cdpproxy/internal/cdpclient"
	"cdpproxy/internal/utility"
)

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "List targets known to a running proxy",
	Args:  cobra.NoArgs,
	RunE:  runTargets,
}

var newTargetCmd = &cobra.Command{
	Use:   "new-target",
	Short: "Open a new target on a running proxy",
	Args:  cobra.NoArgs,
	RunE:  runNewTarget,
}

var closeCmd = &cobra.Command{
	Use:   "close <target-id>",
	Short: "Close a target on a running proxy",
	Args:  cobra.ExactArgs(1),
	RunE:  runClose,
}

var (
	targetsSocket   string
	newTargetSocket string
	closeSocket     string
	devtoolsTimeout time.Duration
)

func init() {
	targetsCmd.Flags().StringVarP(&targetsSocket, "socket", "s", "", "Proxy UNIX socket path")
	_ = targetsCmd.MarkFlagRequired("socket")
	newTargetCmd.Flags().StringVarP(&newTargetSocket, "socket", "s", "", "Proxy UNIX socket path")
	_ = newTargetCmd.MarkFlagRequired("socket")
	closeCmd.Flags().StringVarP(&closeSocket, "socket", "s", "", "Proxy UNIX socket path")
	_ = closeCmd.MarkFlagRequired("socket")
	for _, c := range []*cobra.Command{targetsCmd, newTargetCmd, closeCmd} {
		c.Flags().DurationVar(&devtoolsTimeout, "timeout", 10*time.Second, "Request timeout")
	}
	rootCmd.AddCommand(targetsCmd, newTargetCmd, closeCmd)
}

func runTargets(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), devtoolsTimeout)
	defer cancel()
	var records []json.RawMessage
	if err := cdpclient.GetJSON(ctx, targetsSocket, "/json/list", &records); err != nil {
		return utility.ErrRuntime("%v", err)
	}
	for _, r := range records {
		fmt.Println(string(r))
	}
	return nil
}

func runNewTarget(_ *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), devtoolsTimeout)
	defer cancel()
	var record json.RawMessage
	if err := cdpclient.GetJSON(ctx, newTargetSocket, "/json/new", &record); err != nil {
		return utility.ErrRuntime("%v", err)
	}
	fmt.Println(string(record))
	return nil
}

func runClose(_ *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), devtoolsTimeout)
	defer cancel()
	body, status, err := cdpclient.GetText(ctx, closeSocket, "/json/close/"+args[0])
	if err != nil {
		return utility.ErrRuntime("%v", err)
	}
	fmt.Println(body)
	if status >= 300 {
		return utility.ErrUser("close failed: %s", body)
	}
	return nil
}

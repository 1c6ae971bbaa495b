package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cdpproxy/internal/cdpclient"
	"cdpproxy/internal/utility"
)

var sendCmd = &cobra.Command{
	Use:   "send <method>",
	Short: "Send a CDP command to a running proxy and print the response",
	Args:  cobra.ExactArgs(1),
	RunE:  runSend,
}

var (
	sendSocket  string
	sendTarget  string
	sendParams  string
	sendTimeout time.Duration
)

func init() {
	sendCmd.Flags().StringVarP(&sendSocket, "socket", "s", "", "Proxy UNIX socket path")
	_ = sendCmd.MarkFlagRequired("socket")
	sendCmd.Flags().StringVarP(&sendTarget, "target", "t", "", "Target ID, or 'browser' for browser-level commands")
	sendCmd.Flags().StringVarP(&sendParams, "params", "p", "", "JSON params (or pipe via stdin)")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 30*time.Second, "Response timeout")
	rootCmd.AddCommand(sendCmd)
}

func readParamsFromStdin() (string, error) {
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) != 0 {
		return "", nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	var result string
	for scanner.Scan() {
		result += scanner.Text()
	}
	return result, scanner.Err()
}

func runSend(_ *cobra.Command, args []string) error {
	method := args[0]
	params := sendParams
	if params == "" {
		var err error
		params, err = readParamsFromStdin()
		if err != nil {
			return utility.ErrUser("reading stdin: %v", err)
		}
	}
	var paramsJSON json.RawMessage
	if params != "" {
		if !json.Valid([]byte(params)) {
			return utility.ErrUser("invalid JSON params")
		}
		paramsJSON = json.RawMessage(params)
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	wsPath, err := resolveWsPath(ctx, sendSocket, sendTarget)
	if err != nil {
		return err
	}
	conn, err := cdpclient.Dial(sendSocket, wsPath, false)
	if err != nil {
		return utility.ErrRuntime("dialing proxy: %v", err)
	}
	defer func() { _ = conn.Close() }()

	resp, err := conn.Call(ctx, method, paramsJSON)
	if err != nil {
		return utility.ErrRuntime("%v", err)
	}
	if resp.Error != nil {
		errJSON, _ := json.Marshal(map[string]any{"error": resp.Error})
		fmt.Println(string(errJSON))
		return nil
	}
	if resp.Result != nil {
		fmt.Println(string(resp.Result))
	} else {
		fmt.Println("{}")
	}
	return nil
}

// Command kvault-cli is radishkv's interactive client: it dials a running
// kvaultd, then drives transport.Client from a `Redis> ` prompt exactly the
// way original_source/client.py's ClientSession.shell() drives its ZeroMQ
// REQ socket. Flag names (--server_host, --server_port) follow spec.md §6
// and the original's argparse surface literally.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/radishkv/radishkv/internal/logging"
	"github.com/radishkv/radishkv/transport"
)

const prompt = "Redis> "

func main() {
	var (
		serverHost string
		serverPort int
	)

	root := &cobra.Command{
		Use:   "kvault-cli",
		Short: "radishkv's interactive client",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := fmt.Sprintf("%s:%d", serverHost, serverPort)
			client, err := transport.Dial(addr)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", addr, err)
			}
			defer client.Close()

			return shell(client)
		},
	}

	var flags *pflag.FlagSet = root.Flags()
	flags.StringVar(&serverHost, "server_host", "localhost", "host address for the server")
	flags.IntVar(&serverPort, "server_port", 8234, "host port for the server")

	if err := root.Execute(); err != nil {
		logging.Critical(err.Error())
		os.Exit(1)
	}
}

// shell reads one line at a time from stdin, sends it to the server, and
// prints whatever non-empty reply comes back. Typing EXIT sends it to
// the server, which tears down its session and stops itself (spec.md §6:
// EXIT "terminates client/server session"), then ends this shell too.
func shell(client *transport.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print(prompt)

	for scanner.Scan() {
		line := scanner.Text()

		reply, err := client.Send(line)
		if err != nil {
			return fmt.Errorf("kvault-cli: %w", err)
		}
		if reply != "" {
			fmt.Println(reply)
		}

		if strings.EqualFold(strings.TrimSpace(line), "EXIT") {
			return nil
		}

		fmt.Print(prompt)
	}
	return scanner.Err()
}

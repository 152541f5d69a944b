package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matteso1/kevel/internal/client"
)

func main() {
	var addr string

	rootCmd := &cobra.Command{
		Use:           "kevel-cli",
		Short:         "Command-line client for kevel-server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "127.0.0.1:4000", "Server address")

	getCmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial(addr)
			if err != nil {
				return err
			}
			defer c.Close()

			value, found, err := c.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("Key not found")
				return nil
			}
			fmt.Println(value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a key-value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial(addr)
			if err != nil {
				return err
			}
			defer c.Close()
			return c.Set(args[0], args[1])
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm KEY",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Dial(addr)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Remove(args[0]); err != nil {
				if errors.Is(err, client.ErrRemote) {
					fmt.Fprintln(os.Stderr, "Key not found")
					os.Exit(1)
				}
				return err
			}
			return nil
		},
	}

	rootCmd.AddCommand(getCmd, setCmd, rmCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

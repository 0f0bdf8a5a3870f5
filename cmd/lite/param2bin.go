package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/lite/net"
)

func newParam2BinCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "param2bin IN.param OUT.param.bin",
		Short: "Convert a text param file to binary form",
		Args:  cobra.ExactArgs(2),
		RunE:  param2binHandler,
	}
	cmd.Flags().Bool("names", false, "Print the blob index of every blob name")
	return cmd
}

func param2binHandler(cmd *cobra.Command, args []string) error {
	in, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(args[1])
	if err != nil {
		return err
	}
	w := bufio.NewWriter(out)
	names, err := net.ConvertParamToBinary(in, w)
	if err == nil {
		err = w.Flush()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(args[1]) //nolint:errcheck
		return err
	}

	if show, _ := cmd.Flags().GetBool("names"); show {
		data := make([][]string, len(names))
		for i, name := range names {
			data[i] = []string{strconv.Itoa(i), name}
		}
		table := newTable(cmd.OutOrStdout(), []string{"INDEX", "BLOB"})
		table.AppendBulk(data)
		table.Render()
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", args[1])
	return nil
}

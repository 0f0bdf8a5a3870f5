package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/born-ml/lite/layer"
	"github.com/born-ml/lite/net"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info PARAM",
		Short: "Show the layers and blobs of a param file",
		Args:  cobra.ExactArgs(1),
		RunE:  infoHandler,
	}
}

func infoHandler(cmd *cobra.Command, args []string) error {
	n := net.New()
	loadErr := loadParam(cmd, n, args[0])
	if loadErr != nil && !errors.Is(loadErr, net.ErrLayerLoad) {
		return loadErr
	}
	defer n.Clear()

	blobs := n.Blobs()
	blobNames := func(idx []int) string {
		names := make([]string, len(idx))
		for i, b := range idx {
			names[i] = blobs[b].Name
			if names[i] == "" {
				names[i] = "#" + strconv.Itoa(b)
			}
		}
		return strings.Join(names, ",")
	}

	var data [][]string
	for i, l := range n.Layers() {
		if l == nil {
			data = append(data, []string{strconv.Itoa(i), "-", "(failed to load)", "", ""})
			continue
		}
		m := l.Meta()
		typ := m.Type
		if layer.KindOf(l) == layer.KindCustom {
			typ += " (custom)"
		}
		data = append(data, []string{strconv.Itoa(i), typ, m.Name, blobNames(m.Bottoms), blobNames(m.Tops)})
	}

	table := newTable(cmd.OutOrStdout(), []string{"INDEX", "TYPE", "NAME", "BOTTOMS", "TOPS"})
	table.AppendBulk(data)
	table.Render()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d layers, %d blobs\n", len(n.Layers()), len(blobs))
	return loadErr
}

package main

import (
	"fmt"
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/born-ml/lite/net"
	"github.com/born-ml/lite/tensor"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run PARAM MODEL",
		Short: "Run one inference on a constant input",
		Args:  cobra.ExactArgs(2),
		RunE:  runHandler,
	}
	runCmd.Flags().String("input", "data", "Input blob name")
	runCmd.Flags().StringSlice("output", []string{"output"}, "Output blob names")
	runCmd.Flags().String("shape", "224,224,3", "Input shape as w[,h[,c]]")
	runCmd.Flags().Float32("fill", 0.01, "Value every input element is set to")
	runCmd.Flags().Int("print", 8, "Number of leading output values to print")
	return runCmd
}

// constantInput builds a float32 Mat of shape filled with v.
func constantInput(shape []int, v float32) tensor.Mat {
	n := 1
	for _, s := range shape {
		n *= s
	}
	vals := make([]float32, n)
	for i := range vals {
		vals[i] = v
	}
	return tensor.FromFloat32(vals, shape...)
}

func runHandler(cmd *cobra.Command, args []string) error {
	opt, err := optionFromFlags(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	input, _ := flags.GetString("input")
	outputs, _ := flags.GetStringSlice("output")
	shapeFlag, _ := flags.GetString("shape")
	fill, _ := flags.GetFloat32("fill")
	count, _ := flags.GetInt("print")

	shape, err := parseShape(shapeFlag)
	if err != nil {
		return err
	}

	n := net.New()
	n.Opt = opt
	if err := loadParam(cmd, n, args[0]); err != nil {
		return err
	}
	defer n.Clear()
	if err := n.LoadModelFile(args[1]); err != nil {
		return err
	}

	in := constantInput(shape, fill)
	defer in.Release()

	ex := n.CreateExtractor()
	defer ex.Close()
	if err := ex.Input(input, in); err != nil {
		return err
	}

	var data [][]string
	for _, name := range outputs {
		out, err := ex.Extract(name)
		if err != nil {
			return err
		}
		vals := out.ToFloat32()
		shape := out.Shape()
		out.Release()

		lo, hi, mean := summarize(vals)
		data = append(data, []string{name, shape, formatFloat(lo), formatFloat(hi), formatFloat(mean), formatHead(vals, count)})
	}

	table := newTable(cmd.OutOrStdout(), []string{"BLOB", "SHAPE", "MIN", "MAX", "MEAN", "VALUES"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func summarize(vals []float32) (lo, hi, mean float32) {
	if len(vals) == 0 {
		return 0, 0, 0
	}
	lo, hi = float32(math.Inf(1)), float32(math.Inf(-1))
	var sum float64
	for _, v := range vals {
		lo = min(lo, v)
		hi = max(hi, v)
		sum += float64(v)
	}
	return lo, hi, float32(sum / float64(len(vals)))
}

func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', 6, 32)
}

func formatHead(vals []float32, n int) string {
	n = min(n, len(vals))
	s := ""
	for i := range n {
		if i > 0 {
			s += " "
		}
		s += formatFloat(vals[i])
	}
	if n < len(vals) {
		s += fmt.Sprintf(" ... (%d more)", len(vals)-n)
	}
	return s
}

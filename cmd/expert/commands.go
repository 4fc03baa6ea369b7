package expert

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tensornet/gate/lib/tensor"
)

var (
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints the expert's metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := remoteExpert.Info()
			if err != nil {
				return err
			}

			pretty, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(pretty))
			return nil
		},
	}
	forwardCmd = &cobra.Command{
		Use:   "forward [values]",
		Short: "Runs a forward pass with a comma-separated float vector (e.g. 1.0,2.0)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseVector(args[0])
			if err != nil {
				return err
			}

			stream, _ := cmd.Flags().GetBool("stream")

			var outputs []tensor.Tensor
			if stream {
				outputs, err = remoteExpert.ForwardStream([]tensor.Tensor{input})
			} else {
				outputs, err = remoteExpert.Forward([]tensor.Tensor{input})
			}
			if err != nil {
				return err
			}

			return printOutputs(outputs)
		},
	}
	backwardCmd = &cobra.Command{
		Use:   "backward [values] [grads]",
		Short: "Runs a backward pass with input and gradient vectors",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseVector(args[0])
			if err != nil {
				return err
			}
			grads, err := parseVector(args[1])
			if err != nil {
				return err
			}

			stream, _ := cmd.Flags().GetBool("stream")

			var outputs []tensor.Tensor
			if stream {
				outputs, err = remoteExpert.BackwardStream([]tensor.Tensor{input, grads})
			} else {
				outputs, err = remoteExpert.Backward([]tensor.Tensor{input, grads})
			}
			if err != nil {
				return err
			}

			return printOutputs(outputs)
		},
	}
)

func init() {
	forwardCmd.Flags().Bool("stream", false, "Use the streamed procedure")
	backwardCmd.Flags().Bool("stream", false, "Use the streamed procedure")
}

// parseVector parses a comma-separated float list into a float32 tensor
func parseVector(s string) (tensor.Tensor, error) {
	fields := strings.Split(s, ",")
	values := make([]float32, len(fields))
	for i, field := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
		if err != nil {
			return tensor.Tensor{}, fmt.Errorf("invalid value %q: %w", field, err)
		}
		values[i] = float32(v)
	}
	return tensor.NewFloat32(values, uint64(len(values))), nil
}

// printOutputs prints every output tensor as a float vector
func printOutputs(outputs []tensor.Tensor) error {
	for i, output := range outputs {
		values, err := output.Float32s()
		if err != nil {
			return err
		}
		fmt.Printf("output[%d] = %v\n", i, values)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/waterdesk/outbox"
)

// orderFlags collects an order from flags, or a raw JSON payload from --file.
type orderFlags struct {
	file  string
	order outbox.Order

	bottlesUsed int
	bottleSize  int
	bottlePrice float64
}

func (f *orderFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.file, "file", "f", "", "read the JSON payload from a file (- for stdin)")
	flags.IntVar(&f.order.ProductID, "product-id", 0, "product id")
	flags.Float64Var(&f.order.Quantity, "quantity", 0, "quantity")
	flags.StringVar(&f.order.PaymentMethod, "payment-method", "", "payment method (default Cash)")
	flags.StringVar(&f.order.OrderDate, "order-date", "", "order date, YYYY-MM-DD")
	flags.BoolVar(&f.order.UseBottle, "use-bottle", false, "order uses bottles")
	flags.IntVar(&f.bottlesUsed, "bottles-used", 0, "number of bottles")
	flags.IntVar(&f.bottleSize, "bottle-size", 0, "bottle size")
	flags.Float64Var(&f.bottlePrice, "bottle-price", 0, "price per bottle")
	cmd.MarkFlagsMutuallyExclusive("file", "product-id")
}

// payload returns the JSON to queue. Orders built from flags are validated first.
func (f *orderFlags) payload(cmd *cobra.Command) (json.RawMessage, error) {
	if f.file != "" {
		return f.readFile(cmd.InOrStdin())
	}
	if !cmd.Flags().Changed("product-id") {
		return nil, NewExitError(ExitCommandError, "either --file or --product-id is required")
	}

	order := f.order
	if cmd.Flags().Changed("bottles-used") {
		order.BottlesUsed = &f.bottlesUsed
	}
	if cmd.Flags().Changed("bottle-size") {
		order.BottleSize = &f.bottleSize
	}
	if cmd.Flags().Changed("bottle-price") {
		order.BottlePrice = &f.bottlePrice
	}

	payload, err := order.Payload()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid order", err)
	}

	return payload, nil
}

func (f *orderFlags) readFile(stdin io.Reader) (json.RawMessage, error) {
	var (
		data []byte
		err  error
	)
	if f.file == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(f.file)
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("read %s", f.file), err)
	}
	if !json.Valid(data) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("%s does not contain valid JSON", f.file))
	}

	return json.RawMessage(data), nil
}

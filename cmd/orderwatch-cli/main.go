package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/shopspring/decimal"

	"orderwatch/internal/domain"
	"orderwatch/pkg/orderwatch"
)

const version = "0.1.0"

// Styles.
var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	cellStyle      = lipgloss.NewStyle().Padding(0, 1)
	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	activeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	filledStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	cancelledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func statusStyle(s domain.Status) lipgloss.Style {
	switch s {
	case domain.StatusPending:
		return pendingStyle
	case domain.StatusArmed, domain.StatusTriggered, domain.StatusPartiallyFilled:
		return activeStyle
	case domain.StatusFilled:
		return filledStyle
	case domain.StatusFailed:
		return failedStyle
	default:
		return cancelledStyle
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: orderwatch-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status     Show orderwatch-server health\n")
		fmt.Fprintf(os.Stderr, "  list       List your orders\n")
		fmt.Fprintf(os.Stderr, "  get        Show one order\n")
		fmt.Fprintf(os.Stderr, "  place      Place an advanced order\n")
		fmt.Fprintf(os.Stderr, "  cancel     Cancel an order and its group\n")
		fmt.Fprintf(os.Stderr, "  set-stop   Move a pending trailing stop\n")
		fmt.Fprintf(os.Stderr, "  set-price  Set a paper-trading quote\n")
		fmt.Fprintf(os.Stderr, "  watch      Stream order events\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment: ORDERWATCH_URL (default http://localhost:8080), ORDERWATCH_USER\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	baseURL := "http://localhost:8080"
	if v := os.Getenv("ORDERWATCH_URL"); v != "" {
		baseURL = v
	}
	client := orderwatch.NewClient(baseURL, os.Getenv("ORDERWATCH_USER"))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("orderwatch-cli %s\n", version)

	case "status":
		var status string
		if status, err = client.Health(ctx); err == nil {
			fmt.Printf("orderwatch-server at %s: %s\n", baseURL, status)
		}

	case "list":
		err = runList(ctx, client, args)

	case "get":
		err = runGet(ctx, client, args)

	case "place":
		err = runPlace(ctx, client, args)

	case "cancel":
		err = runCancel(ctx, client, args)

	case "set-stop":
		err = runSetStop(ctx, client, args)

	case "set-price":
		err = runSetPrice(ctx, client, args)

	case "watch":
		err = runWatch(ctx, client)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runList(ctx context.Context, c *orderwatch.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	symbol := fs.String("symbol", "", "only orders for this symbol")
	group := fs.String("group", "", "only orders in this group")
	status := fs.String("status", "", "comma-separated statuses")
	family := fs.String("family", "", "comma-separated families")
	limit := fs.Int("n", 0, "max number of orders (0 = all)")
	fs.Parse(args)

	opts := orderwatch.ListOptions{Symbol: *symbol, GroupID: *group, Limit: *limit}
	if *status != "" {
		opts.Statuses = strings.Split(*status, ",")
	}
	if *family != "" {
		opts.Families = strings.Split(*family, ",")
	}
	orders, err := c.ListOrders(ctx, opts)
	if err != nil {
		return err
	}
	printOrders(orders)
	return nil
}

func runGet(ctx context.Context, c *orderwatch.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: orderwatch-cli get <order-id>")
	}
	o, err := c.GetOrder(ctx, args[0])
	if err != nil {
		return err
	}
	printOrders([]orderwatch.Order{*o})
	if o.Reason != "" {
		fmt.Printf("reason: %s\n", o.Reason)
	}
	return nil
}

func runPlace(ctx context.Context, c *orderwatch.Client, args []string) error {
	fs := flag.NewFlagSet("place", flag.ExitOnError)
	typ := fs.String("type", "", "stop_loss, take_profit, trailing_stop, bracket, oco, iceberg, twap or vwap")
	symbol := fs.String("symbol", "", "symbol")
	side := fs.String("side", "sell", "buy or sell")
	qty := fs.String("qty", "", "total quantity")
	stop := fs.String("stop", "", "stop price")
	limit := fs.String("limit", "", "limit price")
	takeProfit := fs.String("take-profit", "", "bracket take-profit price")
	trail := fs.String("trail", "", "trail amount")
	trailType := fs.String("trail-type", "percentage", "percentage or absolute")
	visible := fs.String("visible", "", "iceberg visible quantity")
	duration := fs.Duration("duration", 0, "twap/vwap schedule length")
	fs.Parse(args)

	req := orderwatch.OrderRequest{
		Type:   *typ,
		Symbol: *symbol,
		Side:   *side,
	}
	var err error
	if req.Quantity, err = decimal.NewFromString(*qty); err != nil {
		return fmt.Errorf("-qty: %w", err)
	}
	for _, f := range []struct {
		name string
		val  string
		dst  *decimal.NullDecimal
	}{
		{"stop", *stop, &req.StopPrice},
		{"limit", *limit, &req.LimitPrice},
		{"take-profit", *takeProfit, &req.TakeProfitPrice},
		{"trail", *trail, &req.TrailAmount},
		{"visible", *visible, &req.VisibleQuantity},
	} {
		if f.val == "" {
			continue
		}
		d, err := decimal.NewFromString(f.val)
		if err != nil {
			return fmt.Errorf("-%s: %w", f.name, err)
		}
		*f.dst = decimal.NewNullDecimal(d)
	}
	if req.TrailAmount.Valid {
		req.TrailType = *trailType
	}
	if *duration > 0 {
		req.Duration = duration.String()
	}

	orders, err := c.PlaceOrder(ctx, req)
	if err != nil {
		return err
	}
	printOrders(orders)
	return nil
}

func runCancel(ctx context.Context, c *orderwatch.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: orderwatch-cli cancel <order-id>")
	}
	orders, err := c.CancelOrder(ctx, args[0])
	if err != nil {
		return err
	}
	printOrders(orders)
	return nil
}

func runSetStop(ctx context.Context, c *orderwatch.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: orderwatch-cli set-stop <order-id> <price>")
	}
	price, err := decimal.NewFromString(args[1])
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	o, err := c.SetStop(ctx, args[0], price)
	if err != nil {
		return err
	}
	printOrders([]orderwatch.Order{*o})
	return nil
}

func runSetPrice(ctx context.Context, c *orderwatch.Client, args []string) error {
	fs := flag.NewFlagSet("set-price", flag.ExitOnError)
	volume := fs.String("volume", "", "traded volume, for vwap schedules")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: orderwatch-cli set-price [-volume v] <symbol> <price>")
	}
	price, err := decimal.NewFromString(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	var vol decimal.Decimal
	if *volume != "" {
		if vol, err = decimal.NewFromString(*volume); err != nil {
			return fmt.Errorf("-volume: %w", err)
		}
	}
	if err := c.SetQuote(ctx, fs.Arg(0), price, vol); err != nil {
		return err
	}
	fmt.Printf("%s = %s\n", strings.ToUpper(fs.Arg(0)), price)
	return nil
}

func runWatch(ctx context.Context, c *orderwatch.Client) error {
	events, err := c.Events(ctx)
	if err != nil {
		return err
	}
	for e := range events {
		line := fmt.Sprintf("%s  %-16s %-20s %-6s %s",
			e.Timestamp.Local().Format(time.TimeOnly), e.Type, e.Family, e.Symbol, e.OrderID)
		if e.Order.AvgFillPrice.Valid {
			line += fmt.Sprintf("  %s/%s @ %s", e.Order.QuantityExecuted, e.Order.Quantity, e.Order.AvgFillPrice.Decimal)
		}
		if e.Message != "" {
			line += "  (" + e.Message + ")"
		}
		fmt.Println(statusStyle(e.Status).Render(line))
	}
	return nil
}

func printOrders(orders []orderwatch.Order) {
	if len(orders) == 0 {
		fmt.Println("no orders")
		return
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("ID", "FAMILY", "SYMBOL", "SIDE", "QTY", "EXECUTED", "STOP", "LIMIT", "STATUS").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			if col == 8 {
				return statusStyle(orders[row].Status).Padding(0, 1)
			}
			return cellStyle
		})
	for _, o := range orders {
		t.Row(o.ID, string(o.Family), o.Symbol, string(o.Side),
			o.Quantity.String(), o.QuantityExecuted.String(),
			nullString(o.StopPrice), nullString(o.LimitPrice), string(o.Status))
	}
	fmt.Println(t)
}

func nullString(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

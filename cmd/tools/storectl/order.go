package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
)

func newOrderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Order maintenance"}

	var note, actor string
	transition := &cobra.Command{
		Use:   "transition <order-id> <status>",
		Short: "Move an order along its lifecycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := dsn()
			if err != nil {
				return err
			}
			db, err := gorm.Open(mysql.Open(d), &gorm.Config{})
			if err != nil {
				return err
			}
			log := slog.New(slog.NewTextHandler(os.Stderr, nil))

			o, err := orders.NewService(db, log).Transition(cmd.Context(), orders.TransitionInput{
				OrderID: args[0],
				Actor:   actor,
				To:      orders.Status(strings.ToLower(args[1])),
				Note:    note,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s -> %s\n", o.OrderNumber, o.ID, o.Status)
			return nil
		},
	}
	transition.Flags().StringVar(&note, "note", "", "audit note")
	transition.Flags().StringVar(&actor, "actor", "ops:storectl", "actor recorded in the audit trail")
	cmd.AddCommand(transition)
	return cmd
}

package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/iliyamo/restaurant-reservation/internal/utils"
)

func newTokenCmd() *cobra.Command {
	var (
		subject     string
		role        string
		restaurants []string
		ttl         int
	)
	c := &cobra.Command{
		Use:   "token",
		Short: "Mint a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return errors.New("JWT_SECRET is not set")
			}
			tok, err := utils.NewAccessToken(secret, subject, role, restaurants, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(tok)
		},
	}
	c.Flags().StringVar(&subject, "sub", "", "owner or operator id")
	c.Flags().StringVar(&role, "role", "CUSTOMER", "CUSTOMER or OPERATOR")
	c.Flags().StringSliceVar(&restaurants, "restaurants", nil, "restaurants an operator manages (* for all)")
	c.Flags().IntVar(&ttl, "ttl", 60, "lifetime in minutes")
	_ = c.MarkFlagRequired("sub")
	return c
}

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	cardex "github.com/kailas-cloud/cardex/pkg/sdk"
)

func newStoreCmd(a *app) *cobra.Command {
	var card cardex.Card
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Embed a card and store it in the index",
		Example: `  cardex store --id c1 --title "Rust ownership" --type note --owner u1
  cardex store --id c2 --title "Sourdough" --description "starter notes" --type recipe --link https://x --owner u1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := a.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			if err := client.StoreCardEmbeddings(cmd.Context(), card); err != nil {
				return fmt.Errorf("store card %s: %w", card.ID, err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %s\n", card.ID)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&card.ID, "id", "", "card id (required)")
	f.StringVar(&card.Title, "title", "", "card title (required)")
	f.StringVar(&card.Description, "description", "", "card description")
	f.StringVar(&card.Type, "type", "", "card type (required)")
	f.StringVar(&card.Link, "link", "", "card link")
	f.StringVar(&card.OwnerID, "owner", "", "owner id")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	var ownerID string
	cmd := &cobra.Command{
		Use:     "query [text]",
		Short:   "Print the owner's closest card as JSON",
		Example: `  cardex query --owner u1 "rust ownership"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ownerID == "" {
				return errors.New("--owner is required")
			}
			client, err := a.openClient(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()

			match, err := client.QueryBestMatch(cmd.Context(), strings.Join(args, " "), ownerID)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]*cardex.MatchResult{"match": match})
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "owner id (required)")
	return cmd
}

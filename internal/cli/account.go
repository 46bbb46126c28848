package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kalshorb/internal/app"
	"kalshorb/internal/store"
	"kalshorb/pkg/advisor"
)

// newAccountCmd creates the account command.
func newAccountCmd(opts *rootOptions) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage account context in the embedded store",
	}

	var userID string
	importCmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import portfolio, positions and risk assessment from a YAML or JSON file",
		Long: `Import an account snapshot into the SQLite store so chat replies can use it.
The file uses the field names of the HTTP API:

  portfolio: {name: main, total_value: 1200, kelly_fraction: 0.25}
  positions:
    - {market_ticker: FED-25DEC, side: yes, quantity: 10, avg_price: 0.42}
  risk_profile: {risk_score: 55, risk_classification: moderate}`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := readAccountFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if driver := store.Resolve(app.StoreConfig(cfg)); driver != store.DriverSQLite {
				return fmt.Errorf("account import requires the sqlite store, configured driver is %s", driver)
			}
			st, err := store.OpenSQLite(store.SQLiteOptions{Path: cfg.Store.SQLitePath})
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := importAccount(cmd, st, userID, account)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("imported %d position(s) for %s", n, userID)))
			return nil
		},
	}
	importCmd.Flags().StringVar(&userID, "user", "cli", "User id the account belongs to")

	accountCmd.AddCommand(importCmd)
	return accountCmd
}

// readAccountFile decodes YAML (or JSON, which YAML accepts) using the JSON
// field names of the advisor types.
func readAccountFile(path string) (*advisor.AccountContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read account file: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse account file %s: %w", path, err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("parse account file %s: %w", path, err)
	}
	var account advisor.AccountContext
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, fmt.Errorf("parse account file %s: %w", path, err)
	}
	return &account, nil
}

func importAccount(cmd *cobra.Command, st *store.SQLite, userID string, account *advisor.AccountContext) (int, error) {
	ctx := commandContext(cmd)
	portfolioID := ""
	if account.Portfolio != nil {
		p := *account.Portfolio
		p.UserID = userID
		id, err := st.SavePortfolio(ctx, p)
		if err != nil {
			return 0, err
		}
		portfolioID = id
	}
	for _, position := range account.Positions {
		position.UserID = userID
		if position.PortfolioID == "" {
			position.PortfolioID = portfolioID
		}
		if _, err := st.SavePosition(ctx, position); err != nil {
			return 0, err
		}
	}
	if account.RiskProfile != nil {
		r := *account.RiskProfile
		r.UserID = userID
		if _, err := st.SaveRiskAssessment(ctx, r); err != nil {
			return 0, err
		}
	}
	return len(account.Positions), nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/moneta-app/moneta/pkg/moneta"
	"github.com/moneta-app/moneta/pkg/rag"
	"github.com/moneta-app/moneta/pkg/store"
)

var (
	dbPath   string
	backend  string
	logLevel string
	embedDim int
)

var rootCmd = &cobra.Command{
	Use:   "moneta",
	Short: "CLI for the moneta personal finance store",
	Long:  `A command-line interface for managing transactions, chat threads and semantic search over a moneta database.`,
}

func openDB(ctx context.Context) (*moneta.DB, error) {
	cfg := moneta.DefaultConfig(dbPath)
	cfg.Backend = moneta.Backend(backend)
	if logLevel != "" {
		cfg.Logger = store.NewStdLogger(store.ParseLogLevel(logLevel))
	}
	db, err := moneta.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

var txnCmd = &cobra.Command{
	Use:   "txn",
	Short: "Manage transactions",
}

var txnAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a transaction",
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		amount, _ := cmd.Flags().GetFloat64("amount")
		currency, _ := cmd.Flags().GetString("currency")
		category, _ := cmd.Flags().GetString("category")
		description, _ := cmd.Flags().GetString("description")
		when, _ := cmd.Flags().GetInt64("timestamp")
		if when == 0 {
			when = time.Now().UnixMilli()
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		txn := &store.Transaction{
			Kind:        store.Kind(kind),
			Timestamp:   when,
			Amount:      amount,
			Currency:    currency,
			Category:    category,
			Description: description,
		}
		if err := rag.EmbedTransaction(ctx, rag.NewMockEmbedder(embedDim), txn); err != nil {
			return fmt.Errorf("failed to embed transaction: %w", err)
		}
		if _, err := db.Store().Transactions().Create(ctx, txn); err != nil {
			return fmt.Errorf("failed to add transaction: %w", err)
		}

		fmt.Printf("Transaction %d added\n", txn.ID)
		return nil
	},
}

var txnListCmd = &cobra.Command{
	Use:   "list",
	Short: "List transactions",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetInt64("from")
		to, _ := cmd.Flags().GetInt64("to")
		asJSON, _ := cmd.Flags().GetBool("json")

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		var txns []store.Transaction
		if from != 0 || to != 0 {
			if to == 0 {
				to = time.Now().UnixMilli()
			}
			txns, err = db.Store().Transactions().ListByDateRange(ctx, from, to)
		} else {
			txns, err = db.Store().Transactions().List(ctx)
		}
		if err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}

		if asJSON {
			data, _ := json.MarshalIndent(txns, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		for _, t := range txns {
			printTransaction(&t)
		}
		fmt.Printf("%d transaction(s)\n", len(txns))
		return nil
	},
}

var txnDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transaction and its chat associations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid transaction id: %w", err)
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CrossRefs().DeleteTransaction(ctx, id); err != nil {
			return fmt.Errorf("failed to delete transaction: %w", err)
		}
		fmt.Printf("Transaction %d deleted\n", id)
		return nil
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Manage chat threads",
}

var chatNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Start a new chat group",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		group, err := db.Threads().CreateGroup(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}
		fmt.Printf("Chat group %d created\n", group.ID)
		return nil
	},
}

var chatSayCmd = &cobra.Command{
	Use:   "say <group-id> <text>",
	Short: "Append a message to a chat group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid group id: %w", err)
		}
		assistant, _ := cmd.Flags().GetBool("assistant")

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		msg, err := db.Threads().AppendMessage(ctx, groupID, !assistant, args[1])
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		fmt.Printf("Message %d appended at position %d\n", msg.ID, msg.Order)
		return nil
	},
}

var chatShowCmd = &cobra.Command{
	Use:   "show <group-id>",
	Short: "Print a chat group's conversation in order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid group id: %w", err)
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		msgs, err := db.Threads().Messages(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range msgs {
			who := "assistant"
			if m.IsUser {
				who = "user"
			}
			fmt.Printf("[%d] %s: %s\n", m.Order, who, m.Message)
		}
		return nil
	},
}

var chatRmCmd = &cobra.Command{
	Use:   "rm <group-id>",
	Short: "Delete a chat group with its messages and associations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid group id: %w", err)
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Threads().DeleteGroup(ctx, groupID); err != nil {
			return fmt.Errorf("failed to delete group: %w", err)
		}
		fmt.Printf("Chat group %d deleted\n", groupID)
		return nil
	},
}

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Manage message/transaction associations",
}

var linkAddCmd = &cobra.Command{
	Use:   "add <message-id> <transaction-id>",
	Short: "Associate a message with a transaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		messageID, transactionID, err := parsePair(args)
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CrossRefs().Associate(ctx, messageID, transactionID); err != nil {
			return fmt.Errorf("failed to associate: %w", err)
		}
		fmt.Printf("Message %d linked to transaction %d\n", messageID, transactionID)
		return nil
	},
}

var linkRmCmd = &cobra.Command{
	Use:   "rm <message-id> <transaction-id>",
	Short: "Remove an association",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		messageID, transactionID, err := parsePair(args)
		if err != nil {
			return err
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CrossRefs().Dissociate(ctx, messageID, transactionID); err != nil {
			return fmt.Errorf("failed to dissociate: %w", err)
		}
		fmt.Printf("Message %d unlinked from transaction %d\n", messageID, transactionID)
		return nil
	},
}

var linkShowCmd = &cobra.Command{
	Use:   "show <message-id>",
	Short: "Show the transactions a message cites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		messageID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id: %w", err)
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		txns, err := db.CrossRefs().TransactionsFor(ctx, messageID)
		if err != nil {
			return fmt.Errorf("failed to list associations: %w", err)
		}
		for _, t := range txns {
			printTransaction(&t)
		}
		fmt.Printf("%d transaction(s)\n", len(txns))
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <text>",
	Short: "Find the transactions most similar to a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		k, _ := cmd.Flags().GetInt("top")
		from, _ := cmd.Flags().GetInt64("from")
		to, _ := cmd.Flags().GetInt64("to")
		if to == 0 {
			to = time.Now().UnixMilli()
		}

		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		query, err := rag.NewMockEmbedder(embedDim).Embed(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
		txns, err := db.ContextBuilder().BuildContext(ctx, query, k, from, to)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		for _, t := range txns {
			printTransaction(&t)
		}
		fmt.Printf("%d result(s)\n", len(txns))
		return nil
	},
}

var currencyCmd = &cobra.Command{
	Use:   "currency",
	Short: "Manage currencies",
}

var currencyAddCmd = &cobra.Command{
	Use:   "add <code>",
	Short: "Register a currency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		c := &store.Currency{Code: args[0]}
		if _, err := db.Store().Currencies().Create(ctx, c); err != nil {
			return fmt.Errorf("failed to add currency: %w", err)
		}
		fmt.Printf("Currency %d (%s) added\n", c.ID, c.Code)
		return nil
	},
}

var currencyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List currencies",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		currencies, err := db.Store().Currencies().List(ctx)
		if err != nil {
			return fmt.Errorf("failed to list currencies: %w", err)
		}
		for _, c := range currencies {
			fmt.Printf("%d\t%s\n", c.ID, c.Code)
		}
		return nil
	},
}

func printTransaction(t *store.Transaction) {
	when := time.UnixMilli(t.Timestamp).Format("2006-01-02 15:04")
	fmt.Printf("%d\t%s\t%s\t%.2f %s\t%s\t%s\n",
		t.ID, when, t.Kind, t.Amount, t.Currency, t.Category, t.Description)
}

func parsePair(args []string) (int64, int64, error) {
	messageID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid message id: %w", err)
	}
	transactionID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid transaction id: %w", err)
	}
	return messageID, transactionID, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "moneta.db", "Database file path")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", string(moneta.BackendObject), "Storage backend (object or relational)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&embedDim, "dim", 256, "Embedding dimensions for the built-in embedder")

	txnAddCmd.Flags().String("kind", string(store.KindExpense), "Transaction kind (income or expense)")
	txnAddCmd.Flags().Float64("amount", 0, "Amount")
	txnAddCmd.Flags().String("currency", "USD", "Currency code")
	txnAddCmd.Flags().String("category", "", "Category")
	txnAddCmd.Flags().String("description", "", "Free-form description")
	txnAddCmd.Flags().Int64("timestamp", 0, "Unix millisecond timestamp (default now)")

	txnListCmd.Flags().Int64("from", 0, "Window start, Unix milliseconds")
	txnListCmd.Flags().Int64("to", 0, "Window end, Unix milliseconds (default now)")
	txnListCmd.Flags().Bool("json", false, "Output as JSON")

	chatSayCmd.Flags().Bool("assistant", false, "Record the message as an assistant reply")

	searchCmd.Flags().Int("top", 5, "Maximum number of results")
	searchCmd.Flags().Int64("from", 0, "Window start, Unix milliseconds")
	searchCmd.Flags().Int64("to", 0, "Window end, Unix milliseconds (default now)")

	txnCmd.AddCommand(txnAddCmd, txnListCmd, txnDeleteCmd)
	chatCmd.AddCommand(chatNewCmd, chatSayCmd, chatShowCmd, chatRmCmd)
	linkCmd.AddCommand(linkAddCmd, linkRmCmd, linkShowCmd)
	currencyCmd.AddCommand(currencyAddCmd, currencyListCmd)
	rootCmd.AddCommand(txnCmd, chatCmd, linkCmd, searchCmd, currencyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"chat-relay/internal"
	"chat-relay/repositories"
)

// viewer opens the relay's store read-only and either dumps recent messages
// of a conversation as a table, or serves the HTML inspector.
func main() {
	conversation := flag.String("conversation", "global_chat", "Conversation to dump")
	limit := flag.Int("limit", 50, "Maximum number of messages")
	serve := flag.Bool("serve", false, "Serve the HTML inspector instead of dumping")
	flag.Parse()

	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// BypassLockGuard allows opening while the relay holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *serve {
		emptyStats := func() map[string]any {
			return map[string]any{
				"Status": "Viewer Mode (Read-Only)",
				"Time":   time.Now().Format(time.RFC822),
			}
		}
		fmt.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
		internal.StartDebugServer(db, config.DebugPort, "/inspect", internal.DefaultMapper, emptyStats)
		select {}
	}

	repo := repositories.NewMessageRepository(db, slog.Default())
	messages, err := repo.GetRecentMessages(*conversation, *limit)
	if err != nil {
		log.Fatalf("Failed to read messages: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Conversation", "User", "Lang", "Message"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	for _, m := range messages {
		table.Append([]string{
			m.CreatedAt.Format(time.TimeOnly),
			m.Conversation,
			color.New(color.FgGreen).Render(m.Username),
			m.Lang,
			m.Content,
		})
	}
	table.Render()
}

// Command simulate plays the two-user scenario against a fresh store and
// prints every conversation list emission Alice receives.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"talkstream/domain"
	"talkstream/internal"
	"talkstream/projection"
	"talkstream/runtime"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	// SIMULATE_DIR keeps the store after the run; a temporary one is used otherwise
	Dir      string        `envconfig:"SIMULATE_DIR"`
	Timeout  time.Duration `envconfig:"SIMULATE_TIMEOUT" default:"5s"`
	LogLevel string        `envconfig:"LOG_LEVEL" default:"WARN"`
	// SIMULATE_COLOURS enables colorized headers
	Colours bool `envconfig:"SIMULATE_COLOURS" default:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	dir := cfg.Dir
	if dir == "" {
		tmp, err := os.MkdirTemp("", "talkstream-simulate-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		dir = tmp
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer db.Close()

	core := internal.NewCore(db, logger, nil, internal.DefaultConfig(dir))
	defer core.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	alice, bob := domain.UserID("alice"), domain.UserID("bob")
	for _, u := range []domain.User{{ID: alice, DisplayName: "Alice"}, {ID: bob, DisplayName: "Bob"}} {
		if _, err = core.Users.Register(ctx, u); err != nil {
			return err
		}
	}

	list, err := core.Engine.OpenConversationList(ctx, alice)
	if err != nil {
		return err
	}
	defer list.Close()

	var emissions []runtime.Emission[projection.ConversationListUpdate]
	next := func() error {
		select {
		case e, ok := <-list.Updates():
			if !ok {
				return fmt.Errorf("subscription closed")
			}
			emissions = append(emissions, e)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// The list starts empty
	if err = next(); err != nil {
		return err
	}
	conversation, err := core.Directory.GetOrCreate(ctx, alice, bob)
	if err != nil {
		return err
	}
	if err = next(); err != nil {
		return err
	}
	if _, err = core.Messages.Append(ctx, alice, conversation.ID, "hi"); err != nil {
		return err
	}
	if err = next(); err != nil {
		return err
	}
	if _, err = core.Messages.Append(ctx, bob, conversation.ID, "hey"); err != nil {
		return err
	}
	if err = next(); err != nil {
		return err
	}

	render(cfg, emissions)
	return nil
}

func render(cfg Config, emissions []runtime.Emission[projection.ConversationListUpdate]) {
	header := "Conversation list of alice"
	if cfg.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Seq", "Conversation", "With", "Last message", "Last message time", "Changes"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for _, e := range emissions {
		seq := strconv.FormatUint(e.Seq, 10)
		if len(e.Update.Items) == 0 {
			table.Append([]string{seq, "-", "-", "-", "-", strconv.Itoa(len(e.Update.Changes))})
			continue
		}
		for _, item := range e.Update.Items {
			last := "null"
			if item.Conversation.LastMessageTime != nil {
				last = item.Conversation.LastMessageTime.Time().Format(time.RFC3339Nano)
			}
			table.Append([]string{
				seq,
				string(item.Conversation.ID)[:8],
				item.OtherDisplayName,
				strconv.Quote(item.Conversation.LastMessage),
				last,
				strconv.Itoa(len(e.Update.Changes)),
			})
		}
	}
	table.Render()
}

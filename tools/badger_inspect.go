package main

import (
	"flag"
	"log"
	"os"
	"talkstream/internal"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/olekukonko/tablewriter"
)

// Prints the documents stored under a prefix: conv:, msg:{conversation}: or user:.
func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	// Index, sequence and feed marker keys are skipped by the default prefix
	prefix := flag.String("prefix", internal.DefaultInspectPrefix, "Prefix to scan")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Time", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	rows, err := internal.Inspect(db, *prefix)
	if err != nil {
		log.Fatal(err)
	}
	for _, row := range rows {
		table.Append([]string{row.Key, row.Type, row.Time, row.Detail})
	}
	table.Render()
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)
	return badger.Open(opts)
}

package internal

import (
	"fmt"
	"strings"
	"talkstream/repositories"

	"github.com/dgraph-io/badger/v4"
)

// DefaultInspectPrefix skips index, sequence and feed marker keys.
const DefaultInspectPrefix = "conv:"

type InspectRow struct {
	Key    string `json:"key"`
	Type   string `json:"type"`
	Time   string `json:"time"`
	Detail string `json:"detail"`
}

// Inspect lists the documents stored under prefix. Undecodable values are
// reported as RAW rows instead of failing the scan.
func Inspect(db *badger.DB, prefix string) ([]InspectRow, error) {
	var rows []InspectRow
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			err := item.Value(func(value []byte) error {
				rows = append(rows, DescribeRow(key, value))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return rows, err
}

func DescribeRow(key, value []byte) InspectRow {
	k := string(key)
	raw := InspectRow{Key: k, Type: "RAW", Time: "-", Detail: fmt.Sprintf("Size: %d bytes", len(value))}
	switch {
	case strings.HasPrefix(k, "conv:"):
		c, err := repositories.DecodeConversation(key, value)
		if err != nil {
			return raw
		}
		at := "-"
		if c.LastMessageTime != nil {
			at = c.LastMessageTime.Time().Format("2006-01-02 15:04:05")
		}
		return InspectRow{Key: k, Type: "CONVERSATION", Time: at, Detail: fmt.Sprintf("%v %q", c.Participants, c.LastMessage)}
	case strings.HasPrefix(k, "msg:"):
		m, err := repositories.DecodeMessage(key, value)
		if err != nil {
			return raw
		}
		return InspectRow{Key: k, Type: "MESSAGE", Time: m.Timestamp.Time().Format("15:04:05.000"), Detail: fmt.Sprintf("%s: %q", m.SenderName, m.Text)}
	case strings.HasPrefix(k, "user:"):
		u, err := repositories.DecodeUser(key, value)
		if err != nil {
			return raw
		}
		detail := strings.Join(strings.Fields(u.DisplayName+" "+u.Email+" "+u.PhoneNumber), " ")
		return InspectRow{Key: k, Type: "USER", Time: u.CreatedAt.Format("2006-01-02"), Detail: detail}
	default:
		return raw
	}
}

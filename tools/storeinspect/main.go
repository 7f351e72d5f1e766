// storeinspect dumps relay records from a Badger store as a table.
// It opens the store read-only and can run alongside the relay.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"care-relay/domain"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	prefix := flag.String("prefix", "msg:", "Prefix to scan (msg:, conv:, notif:, call:)")
	limit := flag.Int("limit", 100, "Maximum rows to print")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Kind", "Timestamp", "Who", "Detail"})
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

	rows := 0
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			if rows == *limit {
				break
			}
			item := it.Item()
			key := string(item.Key())

			// Secondary indexes hold bare ids, not documents.
			if strings.HasPrefix(key, "convuser:") || strings.HasPrefix(key, "calluser:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				rows++
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(
		fmt.Sprintf(" %d record(s) under %q ", rows, *prefix)))
	table.Render()
}

// describe maps one stored document onto a display row by key prefix.
func describe(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "msg:"):
		var m domain.Message
		if err := json.Unmarshal(value, &m); err != nil {
			return malformed(key, err)
		}
		return []string{key, "MESSAGE", m.CreatedAt.Format("2006-01-02 15:04:05"),
			m.Sender().String(), m.Preview(60)}
	case strings.HasPrefix(key, "conv:"):
		var c domain.Conversation
		if err := json.Unmarshal(value, &c); err != nil {
			return malformed(key, err)
		}
		detail := fmt.Sprintf("unread p:%d d:%d last: %s",
			c.Unread(domain.RolePatient), c.Unread(domain.RoleDoctor), c.LastMessage)
		return []string{key, "CONVERSATION", c.LastMessageTime.Format("2006-01-02 15:04:05"),
			c.PatientID + "/" + c.DoctorID, detail}
	case strings.HasPrefix(key, "notif:"):
		var n domain.Notification
		if err := json.Unmarshal(value, &n); err != nil {
			return malformed(key, err)
		}
		return []string{key, strings.ToUpper(string(n.Type)), n.CreatedAt.Format("2006-01-02 15:04:05"),
			n.User().String(), n.Message}
	case strings.HasPrefix(key, "call:"):
		var c domain.VideoCall
		if err := json.Unmarshal(value, &c); err != nil {
			return malformed(key, err)
		}
		detail := fmt.Sprintf("%s (%ds)", c.Status, c.DurationSeconds)
		return []string{key, "CALL", c.CreatedAt.Format("2006-01-02 15:04:05"),
			c.Caller().String() + " -> " + c.Receiver().String(), detail}
	default:
		return []string{key, "RAW", "", "", fmt.Sprintf("%d bytes", len(value))}
	}
}

func malformed(key string, err error) []string {
	return []string{key, "ERROR", "", "", err.Error()}
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)
	return badger.Open(opts)
}

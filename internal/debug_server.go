package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

// InspectRow is one rendered row of the Badger inspector.
type InspectRow struct {
	Key       string
	Namespace string
	Timestamp string
	EntityID  string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer exposes a read-only HTML view of the raw rows,
// filterable by key prefix (msg:, conv:, profile:, account:).
func StartDebugServer(db *badger.DB, port int, endpoint string, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = MessageMapper
	}

	mux.HandleFunc(endpoint, func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "conv:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// MessageMapper renders message and conversation rows; anything else
// falls back to the raw key and value size.
func MessageMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Namespace: "raw",
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	if len(parts) == 0 {
		return row
	}
	row.Namespace = parts[0]

	var fields map[string]any
	if err := json.Unmarshal(val, &fields); err != nil {
		return row
	}

	switch parts[0] {
	case "msg":
		if len(parts) >= 4 {
			if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
				row.Timestamp = time.Unix(0, tsNano).UTC().Format("15:04:05")
			}
			row.EntityID = shorten(parts[3])
		}
		if content, ok := fields["content"].(string); ok {
			row.Detail = content
		}
	case "conv":
		if len(parts) >= 3 {
			row.EntityID = shorten(parts[2])
		}
		if last, ok := fields["last_message"].(string); ok {
			unread, _ := fields["unread"].(float64)
			row.Detail = fmt.Sprintf("%s (unread: %d)", last, int(unread))
		}
	case "profile":
		if len(parts) >= 3 {
			row.EntityID = shorten(parts[2])
		}
		if name, ok := fields["name"].(string); ok {
			row.Detail = name
		}
	}
	return row
}

func shorten(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

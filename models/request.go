package models

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// DecodeJSON decodes a request or task body, keeping numbers as json.Number
// so ids and values are not rounded through float64
func DecodeJSON(r io.Reader, v interface{}) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	return dec.Decode(v)
}

// BulkOptions tunes how items are applied
type BulkOptions struct {
	UpdateExisting bool `json:"updateExisting" bson:"updateExisting"`
}

// BulkRequest is the inbound body of a bulk operation. Either Action or
// Operation names what to do; either IDs or Items lists the targets.
type BulkRequest struct {
	Action     string                   `json:"action,omitempty" bson:"action,omitempty"`
	Operation  string                   `json:"operation,omitempty" bson:"operation,omitempty"`
	Collection string                   `json:"collection,omitempty" bson:"collection,omitempty"`
	IDs        []string                 `json:"ids,omitempty" bson:"ids,omitempty"`
	Items      []map[string]interface{} `json:"items,omitempty" bson:"items,omitempty"`
	Data       map[string]interface{}   `json:"data,omitempty" bson:"data,omitempty"`
	Options    BulkOptions              `json:"options" bson:"options"`
	Async      bool                     `json:"async,omitempty" bson:"async,omitempty"`
}

// ActionName returns the requested action keyword, preferring Action over Operation
func (r BulkRequest) ActionName() string {
	if a := strings.TrimSpace(r.Action); a != "" {
		return a
	}
	return strings.TrimSpace(r.Operation)
}

// Item is one normalized target of a bulk request
type Item struct {
	ID     string
	Fields map[string]interface{}
}

// NormalizedItems flattens IDs and Items into one ordered list. IDs come first.
func (r BulkRequest) NormalizedItems() []Item {
	items := make([]Item, 0, len(r.IDs)+len(r.Items))
	for _, id := range r.IDs {
		items = append(items, Item{ID: strings.TrimSpace(id)})
	}
	for _, raw := range r.Items {
		fields := make(map[string]interface{}, len(raw))
		var id string
		for k, v := range raw {
			if k == "id" || k == "_id" {
				id = itemIDString(v)
				continue
			}
			fields[k] = v
		}
		items = append(items, Item{ID: id, Fields: fields})
	}
	return items
}

// ItemCount is the number of targets without materializing them
func (r BulkRequest) ItemCount() int {
	return len(r.IDs) + len(r.Items)
}

func itemIDString(v interface{}) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case float64:
		if id == math.Trunc(id) && math.Abs(id) < 1<<53 {
			return strconv.FormatInt(int64(id), 10)
		}
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(id))
	}
}

// FailedItem is one failure reported back to synchronous callers
type FailedItem struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// ItemResults splits processed ids by outcome
type ItemResults struct {
	Success []string     `json:"success"`
	Failed  []FailedItem `json:"failed"`
}

// Summary aggregates item outcomes
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BulkResult is returned to synchronous callers. Success only says the run
// reached completion; per-item outcomes live in Results and Summary.
type BulkResult struct {
	Success  bool        `json:"success"`
	Action   string      `json:"action"`
	JobID    string      `json:"jobId"`
	Status   JobStatus   `json:"status"`
	Results  ItemResults `json:"results"`
	Summary  Summary     `json:"summary"`
	Duration int64       `json:"duration"`
}

// BulkTask carries an accepted request to a background worker
type BulkTask struct {
	JobID       string      `json:"jobId"`
	Request     BulkRequest `json:"request"`
	RequestedBy string      `json:"requestedBy"`
}

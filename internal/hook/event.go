package hook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Table names the CMS record table a notification refers to.
type Table string

const (
	TablePages   Table = "pages"
	TableContent Table = "tt_content"
)

func (t Table) Valid() bool {
	return t == TablePages || t == TableContent
}

// RecordKey is a CMS record identifier. Records created in the current
// operation carry a temporary key until the CMS substitutes the final id
// through an IDTable.
type RecordKey string

// UnmarshalJSON accepts both numeric and string keys.
func (k *RecordKey) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*k = RecordKey(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*k = RecordKey(n.String())
	return nil
}

// IDTable maps placeholder keys to the ids the CMS assigned on insert.
type IDTable map[string]int64

// Resolve returns the final id for key: the substituted id for a
// placeholder, otherwise the key parsed as an integer.
func (t IDTable) Resolve(key RecordKey) (int64, bool) {
	if id, ok := t[string(key)]; ok {
		return id, true
	}
	id, err := strconv.ParseInt(string(key), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// IsNew reports whether key was created in the current operation.
func (t IDTable) IsNew(key RecordKey) bool {
	_, ok := t[string(key)]
	return ok
}

// FieldSet holds the field values of a CMS write, as loosely typed as the
// CMS sends them.
type FieldSet map[string]any

// Bool reads a flag field. Numbers, numeric strings and booleans are
// accepted; present is false when the field is absent, null, or an object
// or array.
func (f FieldSet) Bool(name string) (value, present bool) {
	raw, ok := f[name]
	if !ok || raw == nil {
		return false, false
	}
	switch v := raw.(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case int:
		return v != 0, true
	case int64:
		return v != 0, true
	case json.Number:
		n, err := v.Float64()
		return err == nil && n != 0, true
	case string:
		s := strings.TrimSpace(v)
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			return n != 0, true
		}
		return s != "", true
	}
	return false, false
}

// Event is one of the four CMS notifications.
type Event interface {
	Kind() string
}

// FragmentUpdate is one fragment entry of a pending field-update batch.
// New marks a fragment created by the batch itself; its Key is temporary.
// PageID is the proposed page reference of a new fragment; a negative value
// means "after record -PageID". CurrentPageID is the stored page of an
// existing fragment when the CMS already knows it.
type FragmentUpdate struct {
	Key           RecordKey `json:"key"`
	New           bool      `json:"new"`
	Hidden        bool      `json:"hidden"`
	PageID        int64     `json:"page_id"`
	CurrentPageID int64     `json:"current_page_id"`
}

// BatchFieldUpdate is sent before the CMS commits a batch of field updates.
type BatchFieldUpdate struct {
	Fragments     []FragmentUpdate `json:"fragments"`
	Substitutions IDTable          `json:"substitutions"`
}

// CommittedWrite is sent after one record's fields were written.
type CommittedWrite struct {
	Table         Table     `json:"table"`
	Key           RecordKey `json:"key"`
	Fields        FieldSet  `json:"fields"`
	Substitutions IDTable   `json:"substitutions"`
}

// DeleteCommandPre is sent before a delete command runs. Record holds the
// row as it is about to be deleted.
type DeleteCommandPre struct {
	Table         Table     `json:"table"`
	Key           RecordKey `json:"key"`
	Record        FieldSet  `json:"record"`
	Substitutions IDTable   `json:"substitutions"`
}

// DeleteCommandPost is sent after a delete command ran.
type DeleteCommandPost struct {
	Table         Table     `json:"table"`
	Key           RecordKey `json:"key"`
	Substitutions IDTable   `json:"substitutions"`
}

func (BatchFieldUpdate) Kind() string  { return "batch-update" }
func (CommittedWrite) Kind() string    { return "committed-write" }
func (DeleteCommandPre) Kind() string  { return "delete-pre" }
func (DeleteCommandPost) Kind() string { return "delete-post" }

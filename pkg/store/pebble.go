package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"

	"groupchat/pkg/logger"
	"groupchat/pkg/models"
	"groupchat/pkg/utils"
)

var db *pebble.DB
var dbPath string

// seq disambiguates appends that share the same nanosecond timestamp and
// keeps creation order strictly monotonic within the store.
var seq uint64

// ErrNotFound is returned for lookups of absent groups or messages.
var ErrNotFound = errors.New("store: not found")

// Mutations on the same message (or the same group record) are serialized
// through a striped lock so read-modify-write cycles cannot interleave.
// Unrelated messages hash to independent stripes; there is no global lock.
var stripes [64]sync.Mutex

func stripeFor(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &stripes[h.Sum32()%uint32(len(stripes))]
}

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	return nil
}

// Close closes the opened pebble DB if present.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

func notOpen() error {
	return fmt.Errorf("pebble not opened; call store.Open first")
}

// Key layout:
//
//	group:<groupID>:meta                      group record
//	group:<groupID>:msg:<%020d ts>-<%06d n>   message, in creation order
//	msgid:<messageID>                         -> append key, for id lookups
func groupKey(groupID string) []byte {
	return []byte("group:" + groupID + ":meta")
}

func msgPrefix(groupID string) []byte {
	return []byte("group:" + groupID + ":msg:")
}

func msgKey(groupID string, ts int64, n uint64) []byte {
	return []byte(fmt.Sprintf("group:%s:msg:%020d-%06d", groupID, ts, n))
}

func idxKey(msgID string) []byte {
	return []byte("msgid:" + msgID)
}

// Append writes a new message at the tail of its group's log. The store
// assigns the identifier and creation timestamp; the append key never
// changes afterwards, so creation order survives in-place mutation.
func Append(m *models.Message) error {
	if db == nil {
		return notOpen()
	}
	if m.Group == "" {
		return fmt.Errorf("append: missing group id")
	}
	if m.ID == "" {
		m.ID = utils.GenMessageID()
	}
	ts := time.Now().UTC().UnixNano()
	m.CreatedTS = ts
	m.UpdatedTS = ts
	n := atomic.AddUint64(&seq, 1)
	key := msgKey(m.Group, ts, n)

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	wb := db.NewBatch()
	_ = wb.Set(key, data, nil)
	_ = wb.Set(idxKey(m.ID), key, nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("append_message_failed", "group", m.Group, "id", m.ID, "error", err)
		return err
	}
	logger.Debug("message_appended", "group", m.Group, "id", m.ID)
	return nil
}

// appendKeyFor resolves a message id to its append key.
func appendKeyFor(msgID string) ([]byte, error) {
	v, closer, err := db.Get(idxKey(msgID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	key := append([]byte(nil), v...)
	_ = closer.Close()
	return key, nil
}

// GetMessage returns the message stored under the given id.
func GetMessage(msgID string) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	key, err := appendKeyFor(msgID)
	if err != nil {
		return m, err
	}
	v, closer, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return m, ErrNotFound
		}
		return m, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &m); err != nil {
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	return m, nil
}

// UpdateMessage applies mutate to the stored message under a per-message
// lock and persists the result in place. The mutate error is returned
// unchanged so callers can thread their own sentinel errors through.
func UpdateMessage(msgID string, mutate func(*models.Message) error) (models.Message, error) {
	var m models.Message
	if db == nil {
		return m, notOpen()
	}
	mu := stripeFor("msg:" + msgID)
	mu.Lock()
	defer mu.Unlock()

	key, err := appendKeyFor(msgID)
	if err != nil {
		return m, err
	}
	v, closer, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return m, ErrNotFound
		}
		return m, err
	}
	if err := json.Unmarshal(v, &m); err != nil {
		_ = closer.Close()
		return m, fmt.Errorf("invalid stored message: %w", err)
	}
	_ = closer.Close()

	if err := mutate(&m); err != nil {
		return m, err
	}
	m.UpdatedTS = time.Now().UTC().UnixNano()
	data, err := json.Marshal(&m)
	if err != nil {
		return m, fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := db.Set(key, data, pebble.Sync); err != nil {
		logger.Error("update_message_failed", "id", msgID, "error", err)
		return m, err
	}
	return m, nil
}

// DeleteMessage hard-removes a message and its id index. Other messages
// that reference it via reply_to keep their reference; readers resolve it
// to an unavailable preview.
func DeleteMessage(msgID string) error {
	if db == nil {
		return notOpen()
	}
	mu := stripeFor("msg:" + msgID)
	mu.Lock()
	defer mu.Unlock()

	key, err := appendKeyFor(msgID)
	if err != nil {
		return err
	}
	wb := db.NewBatch()
	_ = wb.Delete(key, nil)
	_ = wb.Delete(idxKey(msgID), nil)
	if err := db.Apply(wb, pebble.Sync); err != nil {
		logger.Error("delete_message_failed", "id", msgID, "error", err)
		return err
	}
	logger.Debug("message_deleted", "id", msgID)
	return nil
}

// ListPage returns one page of a group's messages. Pages are counted from
// the newest end (page 1 holds the most recent messages) but each page is
// re-ordered oldest-first before returning, matching chronological display.
// hasMore is a heuristic: true iff the page came back full.
func ListPage(groupID string, page, limit int) ([]models.Message, bool, error) {
	if db == nil {
		return nil, false, notOpen()
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 1
	}
	lower := msgPrefix(groupID)
	upper := append(append([]byte(nil), lower...), 0xff)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	skip := (page - 1) * limit
	out := make([]models.Message, 0, limit)
	for ok := iter.Last(); ok; ok = iter.Prev() {
		if skip > 0 {
			skip--
			continue
		}
		var m models.Message
		if err := json.Unmarshal(iter.Value(), &m); err != nil {
			return nil, false, fmt.Errorf("invalid stored message: %w", err)
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, false, err
	}
	// reverse newest-first into chronological order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, len(out) == limit, nil
}

// SaveGroup stores a group record under its reserved key.
func SaveGroup(g models.Group) error {
	if db == nil {
		return notOpen()
	}
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to marshal group: %w", err)
	}
	if err := db.Set(groupKey(g.ID), data, pebble.Sync); err != nil {
		logger.Error("save_group_failed", "group", g.ID, "error", err)
		return err
	}
	return nil
}

// GetGroup returns the stored group record.
func GetGroup(groupID string) (models.Group, error) {
	var g models.Group
	if db == nil {
		return g, notOpen()
	}
	v, closer, err := db.Get(groupKey(groupID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return g, ErrNotFound
		}
		return g, err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, &g); err != nil {
		return g, fmt.Errorf("invalid stored group: %w", err)
	}
	return g, nil
}

// UpdateGroup applies mutate to the group record under a per-group lock,
// mirroring UpdateMessage. Member-list edits and lastActivity touches go
// through here so the one-entry-per-user invariant holds under races.
func UpdateGroup(groupID string, mutate func(*models.Group) error) (models.Group, error) {
	var g models.Group
	if db == nil {
		return g, notOpen()
	}
	mu := stripeFor("group:" + groupID)
	mu.Lock()
	defer mu.Unlock()

	v, closer, err := db.Get(groupKey(groupID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return g, ErrNotFound
		}
		return g, err
	}
	if err := json.Unmarshal(v, &g); err != nil {
		_ = closer.Close()
		return g, fmt.Errorf("invalid stored group: %w", err)
	}
	_ = closer.Close()

	if err := mutate(&g); err != nil {
		return g, err
	}
	data, err := json.Marshal(&g)
	if err != nil {
		return g, fmt.Errorf("failed to marshal group: %w", err)
	}
	if err := db.Set(groupKey(groupID), data, pebble.Sync); err != nil {
		logger.Error("update_group_failed", "group", groupID, "error", err)
		return g, err
	}
	return g, nil
}

// PurgeOlderThan removes messages created before cutoff (ns) across all
// groups, up to batch deletions per call. It returns the number removed.
// With dryRun set it only counts.
func PurgeOlderThan(cutoff int64, batch int, dryRun bool) (int, error) {
	if db == nil {
		return 0, notOpen()
	}
	if batch <= 0 {
		batch = 1000
	}
	prefix := []byte("group:")
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	cutKey := []byte(fmt.Sprintf("%020d", cutoff))
	removed := 0
	for iter.SeekGE(prefix); iter.Valid() && removed < batch; iter.Next() {
		k := iter.Key()
		if !bytes.HasPrefix(k, prefix) {
			break
		}
		i := bytes.Index(k, []byte(":msg:"))
		if i < 0 {
			continue
		}
		tsPart := k[i+len(":msg:"):]
		if len(tsPart) < len(cutKey) || bytes.Compare(tsPart[:len(cutKey)], cutKey) >= 0 {
			continue
		}
		if dryRun {
			removed++
			continue
		}
		var m models.Message
		wb := db.NewBatch()
		_ = wb.Delete(append([]byte(nil), k...), nil)
		if err := json.Unmarshal(iter.Value(), &m); err == nil && m.ID != "" {
			_ = wb.Delete(idxKey(m.ID), nil)
		}
		if err := db.Apply(wb, pebble.Sync); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, iter.Error()
}

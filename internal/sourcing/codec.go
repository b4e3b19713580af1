package sourcing

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/google/jsonschema-go/jsonschema"

	"leviosa/internal/localstore"
	"leviosa/internal/logging"
)

const (
	// StorageKey is the key holding the persisted session.
	StorageKey = "leviosa_sourcing_state"
	// MaxPersistedProducts caps how many products are written.
	MaxPersistedProducts = 50
)

// SessionStore persists a Session. Every path fails open: write errors are
// dropped and unreadable state loads as no session.
type SessionStore struct {
	kv localstore.KV
}

// NewSessionStore wraps a key-value area. kv may be nil.
func NewSessionStore(kv localstore.KV) *SessionStore {
	return &SessionStore{kv: kv}
}

// Save writes the session with products truncated to MaxPersistedProducts.
func (s *SessionStore) Save(sess *Session) {
	if s == nil || s.kv == nil || sess == nil {
		return
	}

	capped := *sess
	if len(capped.Products) > MaxPersistedProducts {
		capped.Products = capped.Products[:MaxPersistedProducts]
	}
	if capped.Products == nil {
		capped.Products = []Product{}
	}
	if capped.Accepted == nil {
		capped.Accepted = []string{}
	}

	data, err := json.Marshal(capped)
	if err != nil {
		logging.StoreWarn("encode sourcing session: %v", err)
		return
	}
	if err := s.kv.Set(StorageKey, string(data)); err != nil {
		if errors.Is(err, localstore.ErrQuotaExceeded) {
			logging.StoreDebug("sourcing session not saved: %v", err)
			return
		}
		logging.StoreWarn("save sourcing session: %v", err)
	}
}

// Load returns the saved session, or false when none is stored or it fails validation.
func (s *SessionStore) Load() (*Session, bool) {
	if s == nil || s.kv == nil {
		return nil, false
	}
	raw, ok, err := s.kv.Get(StorageKey)
	if err != nil {
		logging.StoreDebug("read sourcing session: %v", err)
		return nil, false
	}
	if !ok || raw == "" {
		return nil, false
	}

	sess, err := decodeSession([]byte(raw))
	if err != nil {
		logging.StoreDebug("discarding saved sourcing session: %v", err)
		return nil, false
	}
	return sess, true
}

// Clear removes the saved session.
func (s *SessionStore) Clear() {
	if s == nil || s.kv == nil {
		return
	}
	if err := s.kv.Remove(StorageKey); err != nil {
		logging.StoreWarn("clear sourcing session: %v", err)
	}
}

// sessionSchema is the shape a stored session must have before it is
// decoded. The optional result maps may be absent or null.
var sessionSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"keyword", "minPrice", "maxPrice", "freeShipping", "sort", "products", "accepted", "reviewIndex"},
	Properties: map[string]*jsonschema.Schema{
		"keyword":         {Type: "string"},
		"minPrice":        {Type: "string"},
		"maxPrice":        {Type: "string"},
		"freeShipping":    {Type: "boolean"},
		"sort":            {Type: "string"},
		"products":        {Type: "array", Items: &jsonschema.Schema{Type: "object"}},
		"accepted":        {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		"reviewIndex":     {Type: "integer"},
		"optimizedPrices": {Types: []string{"object", "null"}},
		"optimizedNames":  {Types: []string{"object", "null"}},
		"coverImages":     {Types: []string{"object", "null"}},
	},
}

var resolvedSessionSchema = mustResolve(sessionSchema)

func mustResolve(s *jsonschema.Schema) *jsonschema.Resolved {
	rs, err := s.Resolve(nil)
	if err != nil {
		panic(fmt.Sprintf("sourcing: invalid session schema: %v", err))
	}
	return rs
}

// storedSession reads reviewIndex as a JSON number so integral values
// written as 2.0 decode too.
type storedSession struct {
	*sessionFields
	ReviewIndex float64 `json:"reviewIndex"`
}

type sessionFields Session

func decodeSession(data []byte) (*Session, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, err
	}
	if err := resolvedSessionSchema.Validate(instance); err != nil {
		return nil, err
	}

	var sess Session
	stored := storedSession{sessionFields: (*sessionFields)(&sess)}
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, err
	}
	idx := math.Max(stored.ReviewIndex, 0)
	sess.ReviewIndex = int(math.Min(idx, float64(len(sess.Products))))
	sess.dedupeAccepted()
	sess.clampIndex()
	return &sess, nil
}

// Package poap serves a Cisco N9Kv's Power-On Auto Provisioning bootstrap
// over HTTP: the per-node libvirt NAT network set up by
// internal/libvirtprovider.EnsurePOAPNetwork pushes DHCP options 66/67
// pointing a booting device at this package's script.py endpoint, which
// in turn downloads the node's startup config (spec section 4.6).
package poap

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("poap")

// NodeState tracks one node's POAP bootstrap progress. It's throwaway
// boot-time bookkeeping, not part of the durable desired/actual topology
// the JSON snapshot covers, so it lives in its own bbolt file rather than
// extending that schema.
type NodeState struct {
	LabID          string    `json:"lab_id"`
	NodeName       string    `json:"node_name"`
	ScriptServedAt time.Time `json:"script_served_at,omitempty"`
	ConfigServedAt time.Time `json:"config_served_at,omitempty"`
	ScriptHits     int       `json:"script_hits"`
	ConfigHits     int       `json:"config_hits"`
}

// Store persists POAP bootstrap bookkeeping in a bbolt database at
// {workspace}/poap_state.db.
type Store struct {
	db *bolt.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open poap store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init poap bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func key(labID, nodeName string) []byte {
	return []byte(labID + "/" + nodeName)
}

// RecordScriptServe increments the script-request counter for a node and
// returns its updated state.
func (s *Store) RecordScriptServe(labID, nodeName string) (NodeState, error) {
	return s.update(labID, nodeName, func(st *NodeState) {
		st.ScriptServedAt = now()
		st.ScriptHits++
	})
}

// RecordConfigServe increments the config-download counter for a node.
func (s *Store) RecordConfigServe(labID, nodeName string) (NodeState, error) {
	return s.update(labID, nodeName, func(st *NodeState) {
		st.ConfigServedAt = now()
		st.ConfigHits++
	})
}

// now is a var so tests can make timestamps deterministic.
var now = time.Now

func (s *Store) update(labID, nodeName string, mutate func(*NodeState)) (NodeState, error) {
	var result NodeState
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		k := key(labID, nodeName)

		st := NodeState{LabID: labID, NodeName: nodeName}
		if raw := b.Get(k); raw != nil {
			if err := json.Unmarshal(raw, &st); err != nil {
				return fmt.Errorf("decode poap state for %s/%s: %w", labID, nodeName, err)
			}
		}
		mutate(&st)
		result = st

		raw, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode poap state for %s/%s: %w", labID, nodeName, err)
		}
		return b.Put(k, raw)
	})
	return result, err
}

// Get returns a node's current POAP bootstrap state, or the zero value if
// it has never been served.
func (s *Store) Get(labID, nodeName string) (NodeState, error) {
	var st NodeState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		raw := b.Get(key(labID, nodeName))
		if raw == nil {
			st = NodeState{LabID: labID, NodeName: nodeName}
			return nil
		}
		return json.Unmarshal(raw, &st)
	})
	return st, err
}

package server

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/brackenfield/kadnet/id"
)

// SaveData is the serializable bootstrap cache (spec.md §6): enough to
// rejoin the network without a fresh bootstrap list, following the
// teacher's SaveData/Serialize/LoadSaveData JSON pattern
// (github.com/opd-ai/toxcore/toxcore.go).
type SaveData struct {
	KSize     int             `json:"ksize"`
	Alpha     int             `json:"alpha"`
	ID        id.NodeID       `json:"id"`
	Neighbors []SavedNeighbor `json:"neighbors"`
}

// SavedNeighbor is a persisted routing-table contact.
type SavedNeighbor struct {
	ID   id.NodeID `json:"id"`
	IP   string    `json:"ip"`
	Port uint16    `json:"port"`
}

// Serialize converts SaveData to JSON bytes.
func (s *SaveData) Serialize() ([]byte, error) {
	return json.Marshal(s)
}

// LoadSaveData parses a previously serialized SaveData.
func LoadSaveData(data []byte) (*SaveData, error) {
	var s SaveData
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("server: load state: %w", err)
	}
	return &s, nil
}

// SaveState captures the node's current identity, tunables, and known
// neighbors into a SaveData snapshot (spec.md §4.6's save_state).
func (n *Node) SaveState() ([]byte, error) {
	neighbors := n.table.FindNeighbors(n.self.ID, n.cfg.K*4, nil)
	saved := &SaveData{
		KSize: n.cfg.K,
		Alpha: alphaValue,
		ID:    n.self.ID,
	}
	for _, c := range neighbors {
		saved.Neighbors = append(saved.Neighbors, SavedNeighbor{ID: c.ID, IP: c.IP.String(), Port: c.Port})
	}
	return saved.Serialize()
}

// LoadState restores previously saved neighbors into the routing table
// (spec.md §4.6's load_state). It does not change the node's own identity:
// NodeID is fixed at construction, matching the teacher's treatment of
// SecretKey/PublicKey as immutable once a Tox instance exists.
func (n *Node) LoadState(data []byte) error {
	saved, err := LoadSaveData(data)
	if err != nil {
		return err
	}
	for _, sn := range saved.Neighbors {
		ip := net.ParseIP(sn.IP)
		if ip == nil {
			continue
		}
		n.table.AddContact(id.Contact{ID: sn.ID, IP: ip, Port: sn.Port})
	}
	return nil
}

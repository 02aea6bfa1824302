package local

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// snapshotFormat is bumped when the export layout changes.
const snapshotFormat = 1

type snapshot struct {
	Format     int                        `json:"format"`
	ExportedAt time.Time                  `json:"exportedAt"`
	Entries    map[string]json.RawMessage `json:"entries"`
}

// Export writes every key of kv to w as one JSON object.
func Export(kv KVStore, w io.Writer, now time.Time) error {
	keys, err := kv.Keys()
	if err != nil {
		return err
	}
	snap := snapshot{
		Format:     snapshotFormat,
		ExportedAt: now.UTC(),
		Entries:    make(map[string]json.RawMessage, len(keys)),
	}
	for _, k := range keys {
		v, ok, err := kv.Get(k)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if !json.Valid(v) {
			return fmt.Errorf("value of %s is not JSON", k)
		}
		snap.Entries[k] = json.RawMessage(v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// Import replaces the contents of kv with a snapshot read from r. Keys not in
// the snapshot are removed.
func Import(kv KVStore, r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Format != snapshotFormat {
		return fmt.Errorf("unsupported snapshot format %d", snap.Format)
	}

	existing, err := kv.Keys()
	if err != nil {
		return err
	}
	for _, k := range existing {
		if _, keep := snap.Entries[k]; !keep {
			if err := kv.Delete(k); err != nil {
				return err
			}
		}
	}
	for k, v := range snap.Entries {
		if err := kv.Set(k, v); err != nil {
			return fmt.Errorf("failed to restore %s: %w", k, err)
		}
	}
	return nil
}

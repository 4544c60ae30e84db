package ipc

import (
	"encoding/json"
	"fmt"
)

// Uint8Array decodes a JSON array of small integers — the wire shape the
// host sends audio bytes in — directly into a byte slice, rather than the
// base64-string encoding encoding/json gives []byte by default.
type Uint8Array []byte

func (u *Uint8Array) UnmarshalJSON(b []byte) error {
	var ints []uint8
	if err := json.Unmarshal(b, &ints); err != nil {
		return fmt.Errorf("ipc: audio_data must be an array of bytes: %w", err)
	}
	*u = Uint8Array(ints)
	return nil
}

func (u Uint8Array) MarshalJSON() ([]byte, error) {
	ints := make([]int, len(u))
	for i, b := range u {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

// ProcessAudioParams is the params payload for process_audio and
// process_audio_stream.
type ProcessAudioParams struct {
	AudioData Uint8Array `json:"audio_data"`
}

// ApproveUpgradeParams is the params payload for approve_upgrade.
type ApproveUpgradeParams struct {
	TargetModel string `json:"target_model"`
}

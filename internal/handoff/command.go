package handoff

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Command names an instruction the control service sends to the bot process.
type Command string

const (
	CommandPause Command = "pause"
	CommandStop  Command = "stop"
)

// Signal is one command on the wire. Pause carries a duration in minutes.
type Signal struct {
	Command  Command   `json:"command"`
	Minutes  int       `json:"minutes,omitempty"`
	IssuedAt time.Time `json:"issued_at"`
}

// CommandFile carries control commands from the service to the bot. One
// pending command at a time; writing a new one overwrites the previous, and
// the bot consumes it exactly once per delivery.
type CommandFile struct {
	mu   sync.Mutex
	path string
}

func NewCommandFile(path string) *CommandFile {
	return &CommandFile{path: path}
}

// Issue writes a command, replacing any pending one.
func (c *CommandFile) Issue(cmd Command, minutes int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sig := Signal{Command: cmd, Minutes: minutes, IssuedAt: time.Now()}
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("command issue: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("command issue: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("command issue: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("command issue: %w", err)
	}
	log.Printf("handoff: issued %s command", cmd)
	return nil
}

// Consume reads and deletes the pending command. Returns nil when there is
// none; a corrupt file is removed and reported as none.
func (c *CommandFile) Consume() *Signal {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("handoff: read command %s: %v", c.path, err)
		}
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		log.Printf("handoff: remove command %s: %v", c.path, err)
	}
	var sig Signal
	if err := json.Unmarshal(data, &sig); err != nil {
		log.Printf("handoff: corrupt command file dropped: %v", err)
		return nil
	}
	return &sig
}

// EmergencyStop is a persistent marker file. Unlike CommandFile it is not
// consumed on read: once tripped, the bot refuses to trade until an operator
// clears it.
type EmergencyStop struct {
	path string
}

func NewEmergencyStop(path string) *EmergencyStop {
	return &EmergencyStop{path: path}
}

// Trip creates the marker.
func (e *EmergencyStop) Trip(reason string) error {
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("emergency stop: %w", err)
	}
	payload := fmt.Sprintf("%s %s\n", time.Now().Format(time.RFC3339), reason)
	if err := os.WriteFile(e.path, []byte(payload), 0o644); err != nil {
		return fmt.Errorf("emergency stop: %w", err)
	}
	log.Printf("handoff: emergency stop tripped: %s", reason)
	return nil
}

// Active reports whether the marker exists.
func (e *EmergencyStop) Active() bool {
	_, err := os.Stat(e.path)
	return err == nil
}

// Clear removes the marker.
func (e *EmergencyStop) Clear() error {
	if err := os.Remove(e.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("emergency stop clear: %w", err)
	}
	return nil
}

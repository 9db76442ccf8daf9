package queue

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/iliyamo/room-settlement/internal/notify"
)

// auditedEvents are the money-relevant events kept in the settlement log.
var auditedEvents = map[string]bool{
	notify.ParticipantPayed:        true,
	notify.PaymentUpdated:          true,
	notify.RoomReadyForSettlement:  true,
	notify.RoomSettled:             true,
	notify.SignatureRequestUpdated: true,
}

// AuditLog appends one line per audited event to a file.
type AuditLog struct {
	mu   sync.Mutex
	path string
}

// NewAuditLog writes to dir/settlement.log.
func NewAuditLog(dir string) *AuditLog {
	return &AuditLog{path: filepath.Join(dir, "settlement.log")}
}

// Sink is the notify.Sink form of Record; errors are logged.
func (a *AuditLog) Sink(_ context.Context, ev notify.Event) {
	if err := a.Record(ev); err != nil {
		log.Printf("event-consumer: audit: %v", err)
	}
}

// Record appends ev when it is audited and reports write failures.
func (a *AuditLog) Record(ev notify.Event) error {
	if !auditedEvents[ev.Name] {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatLine(ev notify.Event) string {
	keys := make([]string, 0, len(ev.Payload))
	for k := range ev.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | scope=%s", ev.At.UTC().Format("2006-01-02T15:04:05Z07:00"), ev.Name, ev.Scope)
	for _, k := range keys {
		fmt.Fprintf(&b, " | %s=%v", k, ev.Payload[k])
	}
	b.WriteByte('\n')
	return b.String()
}

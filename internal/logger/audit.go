package logger

import (
	"io"
	"log"
	"sort"
	"strings"
	"sync"
)

var (
	auditMu  sync.Mutex
	auditLog *log.Logger
)

// SetAuditWriter routes decision dumps to w. A nil writer disables them.
func SetAuditWriter(w io.Writer) {
	auditMu.Lock()
	defer auditMu.Unlock()
	if w == nil {
		auditLog = nil
		return
	}
	auditLog = log.New(w, "", log.LstdFlags|log.Lmicroseconds)
}

// AuditEnabled reports whether a decision dump writer is configured.
func AuditEnabled() bool {
	auditMu.Lock()
	defer auditMu.Unlock()
	return auditLog != nil
}

// Audit writes one decision record as a single line:
// [AUDIT][kind][symbol] k=v k=v ...
// Keys are sorted so that identical records render identically.
func Audit(kind, symbol string, fields map[string]string) {
	auditMu.Lock()
	l := auditLog
	auditMu.Unlock()
	if l == nil {
		return
	}
	var b strings.Builder
	b.WriteString("[AUDIT]")
	if kind != "" {
		b.WriteString("[" + kind + "]")
	}
	if symbol != "" {
		b.WriteString("[" + symbol + "]")
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := strings.TrimSpace(fields[k])
		if v == "" {
			continue
		}
		if strings.ContainsAny(v, " \t") {
			v = "\"" + v + "\""
		}
		b.WriteString(" " + k + "=" + v)
	}
	l.Print(b.String())
}

package app

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// InstanceID names this process in logs. ISPOPS_INSTANCE_ID wins, otherwise
// isp-ops-{hostname}-{8 hex}.
func InstanceID() string {
	if id := os.Getenv("ISPOPS_INSTANCE_ID"); id != "" {
		return id
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("isp-ops-%s-%s", hostname, uuid.NewString()[:8])
}

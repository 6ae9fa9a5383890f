package banksdk

import (
	"context"
	"net/http"
)

func (s *Session) ListAuditLogs(ctx context.Context) ([]AuditLog, error) {
	var logs []AuditLog
	if err := s.do(ctx, NewRequest(http.MethodGet, "/monitoring/logs/"), &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *Session) ListDevices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := s.do(ctx, NewRequest(http.MethodGet, "/monitoring/devices/"), &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

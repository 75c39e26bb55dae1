package infra

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/zenguard/internal/domain"
)

// DaemonTable implements domain.DaemonRegistry on the daemon_state table,
// so the supervisor and guardian find each other through the shared store.
type DaemonTable struct {
	s              *Store
	processManager domain.ProcessManager
}

// NewDaemonTable creates a registry backed by s.
func NewDaemonTable(s *Store, pm domain.ProcessManager) *DaemonTable {
	return &DaemonTable{s: s, processManager: pm}
}

// Register records the daemon's PID, replacing any previous holder of the role.
func (r *DaemonTable) Register(daemon domain.Daemon) error {
	now := time.Now().Unix()
	started := unixOrZero(daemon.StartedAt)
	if started == 0 {
		started = now
	}
	_, err := r.s.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (role, pid, started_at, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, started, now, daemon.AppVersion,
	)
	return domain.NewStorageError("register daemon", err)
}

// UpdateHeartbeat updates the timestamp for liveness display.
func (r *DaemonTable) UpdateHeartbeat(role domain.DaemonRole) error {
	res, err := r.s.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		time.Now().Unix(), string(role))
	if err != nil {
		return domain.NewStorageError("update heartbeat", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("daemon %s not registered", role)
	}
	return nil
}

// IsPartnerAlive checks whether the other role's PID is running.
// An unregistered partner counts as not alive.
func (r *DaemonTable) IsPartnerAlive(role domain.DaemonRole) (bool, error) {
	partner := PartnerRole(role)

	var pid int
	err := r.s.db.QueryRow(`SELECT pid FROM daemon_state WHERE role = ?`, string(partner)).Scan(&pid)
	if errors.Is(err, sql.ErrNoRows) || pid == 0 {
		return false, nil
	}
	if err != nil {
		return false, domain.NewStorageError("get partner", err)
	}
	return r.processManager.IsRunning(pid), nil
}

// GetAll returns both daemons' state, or nil when none is registered.
func (r *DaemonTable) GetAll() (*domain.RegistryEntry, error) {
	rows, err := r.s.db.Query(`SELECT role, pid, last_heartbeat, app_version FROM daemon_state`)
	if err != nil {
		return nil, domain.NewStorageError("get daemons", err)
	}
	defer rows.Close()

	entry := &domain.RegistryEntry{Version: 1}
	found := false
	for rows.Next() {
		var (
			role       string
			pid        int
			heartbeat  int64
			appVersion string
		)
		if err := rows.Scan(&role, &pid, &heartbeat, &appVersion); err != nil {
			return nil, domain.NewStorageError("get daemons", err)
		}
		found = true
		switch domain.DaemonRole(role) {
		case domain.RoleSupervisor:
			entry.SupervisorPID = pid
			entry.AppVersion = appVersion
		case domain.RoleGuardian:
			entry.GuardianPID = pid
		}
		if heartbeat > entry.LastHeartbeat {
			entry.LastHeartbeat = heartbeat
		}
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("get daemons", err)
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

// Clear removes all daemon state (for clean restart).
func (r *DaemonTable) Clear() error {
	_, err := r.s.db.Exec(`DELETE FROM daemon_state`)
	return domain.NewStorageError("clear daemons", err)
}

// PartnerRole returns the role that watches role.
func PartnerRole(role domain.DaemonRole) domain.DaemonRole {
	if role == domain.RoleGuardian {
		return domain.RoleSupervisor
	}
	return domain.RoleGuardian
}

var _ domain.DaemonRegistry = (*DaemonTable)(nil)

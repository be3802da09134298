package respserver

import (
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/yndnr/tidekv/internal/infra/buildinfo"
)

func (s *Server) infoSection(name string) [][2]string {
	switch name {
	case "server":
		bi := buildinfo.Get()
		port := ""
		if addr := s.Addr(); addr != nil {
			if i := strings.LastIndexByte(addr.String(), ':'); i >= 0 {
				port = addr.String()[i+1:]
			}
		}
		st := s.Stats()
		return [][2]string{
			{"tidekv_version", bi.Version},
			{"tidekv_git_sha1", bi.Commit},
			{"tidekv_build_time", bi.BuildTime},
			{"os", runtime.GOOS + " " + runtime.GOARCH},
			{"go_version", runtime.Version()},
			{"process_id", strconv.Itoa(os.Getpid())},
			{"tcp_port", port},
			{"uptime_in_seconds", itoa(st.UptimeSeconds)},
			{"uptime_in_days", itoa(st.UptimeSeconds / 86400)},
		}

	case "clients":
		st := s.Stats()
		return [][2]string{
			{"connected_clients", strconv.Itoa(st.ConnectedClients)},
			{"maxclients", strconv.Itoa(s.cfg.MaxClients)},
			{"blocked_clients", "0"},
		}

	case "memory":
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		return [][2]string{
			{"used_memory", strconv.FormatUint(ms.HeapAlloc, 10)},
			{"used_memory_sys", strconv.FormatUint(ms.Sys, 10)},
			{"heap_objects", strconv.FormatUint(ms.HeapObjects, 10)},
			{"gc_runs", strconv.FormatUint(uint64(ms.NumGC), 10)},
			{"goroutines", strconv.Itoa(runtime.NumGoroutine())},
		}

	case "persistence":
		if s.persist == nil {
			return [][2]string{{"persistence_enabled", "0"}}
		}
		ps := s.persist.Status()
		lastSave := ps.LastSave / 1000
		status := "ok"
		if !ps.LastSaveOK && ps.LastSave != 0 {
			status = "err"
		}
		out := [][2]string{
			{"persistence_enabled", "1"},
			{"backend", ps.Backend},
			{"encrypted", boolInt(ps.Encrypted)},
			{"changes_since_last_save", itoa(ps.ChangesSinceSave)},
			{"bgsave_in_progress", boolInt(ps.Saving)},
			{"last_save_time", itoa(lastSave)},
			{"last_bgsave_status", status},
			{"wal_enabled", boolInt(ps.WALEnabled)},
			{"wal_journal_errors", strconv.FormatUint(ps.JournalErrors, 10)},
		}
		if ps.WAL != nil {
			out = append(out,
				[2]string{"wal_segment", strconv.FormatUint(ps.WAL.SegmentID, 10)},
				[2]string{"wal_entries", strconv.FormatUint(ps.WAL.Entries, 10)},
				[2]string{"wal_syncs", strconv.FormatUint(ps.WAL.Syncs, 10)},
			)
		}
		if ps.LastSnapshot != nil {
			out = append(out,
				[2]string{"last_snapshot_id", ps.LastSnapshot.ID},
				[2]string{"last_snapshot_keys", itoa(ps.LastSnapshot.KeyCount)},
				[2]string{"last_snapshot_bytes", itoa(ps.LastSnapshot.Size)},
			)
		}
		return out

	case "stats":
		st := s.Stats()
		ks := s.disp.DB().Stats()
		return [][2]string{
			{"total_connections_received", itoa(st.TotalConnections)},
			{"total_commands_processed", itoa(st.TotalCommands)},
			{"rejected_connections", itoa(st.RejectedConnections)},
			{"expired_keys", strconv.FormatUint(ks.Expired, 10)},
			{"rate_limited_clients", strconv.Itoa(s.limiter.size())},
		}

	case "keyspace":
		ks := s.disp.DB().Stats()
		if ks.Keys == 0 {
			return nil
		}
		return [][2]string{
			{"db0", "keys=" + strconv.Itoa(ks.Keys) + ",expires=" + strconv.Itoa(ks.Volatile) + ",avg_ttl=0"},
		}
	}
	return nil
}

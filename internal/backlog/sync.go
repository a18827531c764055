package backlog

// Sync reconciles the backlog against the latest CI logs: open lint and
// typecheck items whose finding no longer appears are auto-closed. Other
// kinds are left alone since their absence from a single run proves nothing.

// autoCloseKinds are the kinds whose items track individual tool findings
// closely enough that disappearance from the logs means resolved.
var autoCloseKinds = map[string]bool{
	"lint":      true,
	"typecheck": true,
}

const autoCloseNote = "auto-close: no longer present in logs"

// CollectActiveDigests parses the logs under dir and returns the set of
// digests still being reported.
func CollectActiveDigests(dir string) (map[string]bool, error) {
	findings, err := ParseLogsDir(dir)
	if err != nil {
		return nil, err
	}
	active := make(map[string]bool, len(findings))
	for _, f := range findings {
		active[f.Digest()] = true
	}
	return active, nil
}

// SyncResult summarizes one reconciliation run.
type SyncResult struct {
	Active int      `json:"active"`
	Closed []string `json:"closed"`
}

// CloseResolved marks open auto-closable items done when their digest is
// absent from active. Items without a recorded digest are never touched.
func (s *Store) CloseResolved(active map[string]bool) (*SyncResult, error) {
	latest, err := s.LatestByID()
	if err != nil {
		return nil, err
	}

	result := &SyncResult{Active: len(active), Closed: []string{}}
	for id, item := range latest {
		if !autoCloseKinds[item.Kind] {
			continue
		}
		if item.Status == StatusDone || item.Status == StatusBlocked {
			continue
		}
		digest := item.Meta["digest"]
		if digest == "" || active[digest] {
			continue
		}
		if _, err := s.UpdateStatus(id, StatusDone, autoCloseNote, nil); err != nil {
			return nil, err
		}
		result.Closed = append(result.Closed, id)
	}
	return result, nil
}

// SyncLogsDir is the one-shot form: parse logs, then close resolved items.
func (s *Store) SyncLogsDir(dir string) (*SyncResult, error) {
	active, err := CollectActiveDigests(dir)
	if err != nil {
		return nil, err
	}
	return s.CloseResolved(active)
}

package cpapi

import (
	"net/http"
	"strconv"
)

// revocationListResponse mirrors pkg/sync's client-side decode target
// byte-for-byte; the two must never drift independently.
type revocationListResponse struct {
	SnapshotID  uint64   `json:"snapshot_id"`
	RevokedJTIs []string `json:"revoked_jtis"`
}

// handleRevocationList serves GET /identity/revocation-list?since=… (spec
// §6): a full snapshot when since is omitted, an incremental diff
// otherwise. A since ahead of the registry's CurrentSnapshotID is a gap and
// is answered with 410 Gone; any other since resolves to DiffSince, since
// this registry never prunes.
func (s *Server) handleRevocationList(w http.ResponseWriter, r *http.Request) {
	sinceParam := r.URL.Query().Get("since")

	if sinceParam == "" {
		snapshotID, jtis := s.deps.Revocations.Snapshot()
		Respond(w, http.StatusOK, revocationListResponse{SnapshotID: snapshotID, RevokedJTIs: jtis})
		return
	}

	since, err := strconv.ParseUint(sinceParam, 10, 64)
	if err != nil {
		RespondError(w, http.StatusBadRequest, "bad_request", "since must be a non-negative integer")
		return
	}

	current := s.deps.Revocations.CurrentSnapshotID()
	if since > current {
		// Caller's watermark is ahead of what this registry knows: a gap
		// from the caller's point of view. Spec §6 "full snapshot if ...
		// gap detected" — 410 Gone tells pkg/sync's client to retry with
		// since=0.
		RespondError(w, http.StatusGone, "snapshot_gap", "since is ahead of the known snapshot sequence")
		return
	}

	diff := s.deps.Revocations.DiffSince(since)
	Respond(w, http.StatusOK, revocationListResponse{SnapshotID: current, RevokedJTIs: diff})
}
